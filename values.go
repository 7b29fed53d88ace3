package mysql

import (
	"crypto/tls"
	"time"
)

// Param is the closed set of parameter kinds accepted by prepared
// statement execution (spec §9): higher layers convert user values into
// one of these explicitly rather than relying on duck typing. Booleans
// are normalized to Int(0/1) before reaching this type.
type Param struct {
	kind  paramKind
	i     int64
	u     uint64
	unsig bool
	f     float64
	b     []byte
}

type paramKind int

const (
	paramNull paramKind = iota
	paramInt
	paramFloat
	paramBytes
)

// NullParam returns a parameter bound to SQL NULL.
func NullParam() Param { return Param{kind: paramNull} }

// IntParam returns a signed integer parameter.
func IntParam(v int64) Param { return Param{kind: paramInt, i: v} }

// UintParam returns an unsigned integer parameter.
func UintParam(v uint64) Param { return Param{kind: paramInt, u: v, unsig: true} }

// FloatParam returns a double-precision float parameter.
func FloatParam(v float64) Param { return Param{kind: paramFloat, f: v} }

// BytesParam returns a string/blob parameter, encoded as VAR_STRING.
func BytesParam(v []byte) Param { return Param{kind: paramBytes, b: v} }

// StringParam is a convenience wrapper over BytesParam.
func StringParam(v string) Param { return BytesParam([]byte(v)) }

// BoolParam normalizes a boolean to the 0/1 integer MySQL's binary
// protocol expects (spec §4.C).
func BoolParam(v bool) Param {
	if v {
		return IntParam(1)
	}
	return IntParam(0)
}

// ColumnDefinition describes one result-set column (spec §3).
type ColumnDefinition struct {
	Catalog    string
	Schema     string
	Table      string
	OrgTable   string
	Name       string
	OrgName    string
	Charset    uint16
	ByteLength uint32
	TypeCode   fieldType
	Flags      fieldFlag
	Decimals   uint8
}

// Unsigned reports whether the column's values should be treated as
// unsigned integers.
func (c *ColumnDefinition) Unsigned() bool { return c.Flags&flagUnsigned != 0 }

// OKPacket is the decoded form of a server OK/EOF-as-OK response (spec
// §3).
type OKPacket struct {
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  statusFlag
	Warnings     uint16
	Info         string
}

func (o *OKPacket) MoreResults() bool { return o.StatusFlags&statusMoreResultsExists != 0 }

// StmtPrepareOk is the response to COM_STMT_PREPARE (spec §3).
type StmtPrepareOk struct {
	StatementID uint32
	NumColumns  uint16
	NumParams   uint16
	Warnings    uint16
	ParamDefs   []ColumnDefinition
	ColumnDefs  []ColumnDefinition
}

// Row is one decoded result-set row: nil entries mark SQL NULL. Text
// protocol rows hold []byte for every non-null column; binary protocol
// rows hold typed Go values (int64/uint64/float64/[]byte/string); FLOAT
// columns are widened to float64.
type Row []any

// Result is the outcome of a SELECT-shaped query (component I).
type Result struct {
	Columns []ColumnDefinition
	Rows    []Row
}

// ExecuteResult is the outcome of a non-SELECT command: affected rows,
// last insert id, and warning count (spec §4.F query/execute).
type ExecuteResult struct {
	AffectedRows uint64
	LastInsertID uint64
	Warnings     uint16
}

// StreamStats is populated when a RowStream completes (spec §4.G).
type StreamStats struct {
	RowCount    uint64
	ColumnCount int
	Duration    time.Duration
	Warnings    uint16
	ThreadID    uint32
}

// ConnectionParams configures a single Connection (spec §6). URI
// parsing into this struct is an external collaborator's job; this
// package only consumes the already-populated struct (or a YAML file —
// see LoadParamsFile).
type ConnectionParams struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string

	Charset        byte
	ConnectTimeout time.Duration

	TLS       *tls.Config
	SSLVerify bool

	KillTimeoutSeconds           float64
	EnableServerSideCancellation bool

	Compress        bool
	ResetOnRelease  bool
	MultiStatements bool

	Logger Logger
}

func (p *ConnectionParams) killTimeout() time.Duration {
	if p.KillTimeoutSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(p.KillTimeoutSeconds * float64(time.Second))
}

func (p *ConnectionParams) logger() Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return NewDefaultLogger()
}

func (p *ConnectionParams) charset() byte {
	if p.Charset == 0 {
		return defaultCharset
	}
	return p.Charset
}
