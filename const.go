package mysql

// Packets documentation: https://dev.mysql.com/doc/dev/mysql-server/latest/PAGE_PROTOCOL.html

// maxPacketSize is the largest payload a single frame can carry; payloads
// of exactly this size are followed by a continuation frame (spec §3/§4.A).
const maxPacketSize = 1<<24 - 1

// minProtocolVersion is the lowest Protocol::HandshakeV10 version this
// client accepts.
const minProtocolVersion = 10

// defaultCharset is utf8mb4_general_ci, sent in the handshake response
// when ConnectionParams.Charset is zero.
const defaultCharset byte = 45

// command bytes (COM_*)
const (
	comQuit         byte = 0x01
	comInitDB       byte = 0x02
	comQuery        byte = 0x03
	comPing         byte = 0x0e
	comStmtPrepare  byte = 0x16
	comStmtExecute  byte = 0x17
	comStmtClose    byte = 0x19
	comStmtReset    byte = 0x1a
	comResetConn    byte = 0x1f
)

// generic response packet markers
const (
	iOK           byte = 0x00
	iAuthMoreData byte = 0x01
	iLocalInFile  byte = 0xfb
	iEOF          byte = 0xfe
	iERR          byte = 0xff
)

// auth more-data sub codes (caching_sha2_password)
const (
	cachingSHA2FastAuthSuccess byte = 0x03
	cachingSHA2FullAuthRequest byte = 0x04
	cachingSHA2RequestPubKey   byte = 0x02
)

// capability flags (CLIENT_*)
type capabilityFlag uint32

const (
	clientLongPassword               capabilityFlag = 0x00000001
	clientFoundRows                  capabilityFlag = 0x00000002
	clientLongFlag                   capabilityFlag = 0x00000004
	clientConnectWithDB              capabilityFlag = 0x00000008
	clientNoSchema                   capabilityFlag = 0x00000010
	clientCompress                   capabilityFlag = 0x00000020
	clientLocalFiles                 capabilityFlag = 0x00000080
	clientProtocol41                 capabilityFlag = 0x00000200
	clientSSL                        capabilityFlag = 0x00000800
	clientTransactions               capabilityFlag = 0x00002000
	clientSecureConnection           capabilityFlag = 0x00008000
	clientMultiStatements            capabilityFlag = 0x00010000
	clientMultiResults               capabilityFlag = 0x00020000
	clientPSMultiResults             capabilityFlag = 0x00040000
	clientPluginAuth                 capabilityFlag = 0x00080000
	clientConnectAttrs               capabilityFlag = 0x00100000
	clientPluginAuthLenEncClientData capabilityFlag = 0x00200000
	clientSessionTrack               capabilityFlag = 0x00800000
	clientDeprecateEOF               capabilityFlag = 0x01000000
)

// server status flags
type statusFlag uint16

const (
	statusInTrans           statusFlag = 0x0001
	statusInAutocommit      statusFlag = 0x0002
	statusMoreResultsExists statusFlag = 0x0008
	statusCursorExists      statusFlag = 0x0040
	statusLastRowSent       statusFlag = 0x0080
)

// column field types
type fieldType byte

const (
	fieldTypeDecimal    fieldType = 0x00
	fieldTypeTiny       fieldType = 0x01
	fieldTypeShort      fieldType = 0x02
	fieldTypeLong       fieldType = 0x03
	fieldTypeFloat      fieldType = 0x04
	fieldTypeDouble     fieldType = 0x05
	fieldTypeNULL       fieldType = 0x06
	fieldTypeTimestamp  fieldType = 0x07
	fieldTypeLongLong   fieldType = 0x08
	fieldTypeInt24      fieldType = 0x09
	fieldTypeDate       fieldType = 0x0a
	fieldTypeTime       fieldType = 0x0b
	fieldTypeDateTime   fieldType = 0x0c
	fieldTypeYear       fieldType = 0x0d
	fieldTypeNewDate    fieldType = 0x0e
	fieldTypeVarChar    fieldType = 0x0f
	fieldTypeBit        fieldType = 0x10
	fieldTypeJSON       fieldType = 0xf5
	fieldTypeNewDecimal fieldType = 0xf6
	fieldTypeEnum       fieldType = 0xf7
	fieldTypeSet        fieldType = 0xf8
	fieldTypeTinyBLOB   fieldType = 0xf9
	fieldTypeMediumBLOB fieldType = 0xfa
	fieldTypeLongBLOB   fieldType = 0xfb
	fieldTypeBLOB       fieldType = 0xfc
	fieldTypeVarString  fieldType = 0xfd
	fieldTypeString     fieldType = 0xfe
	fieldTypeGeometry   fieldType = 0xff
)

// column field flags
type fieldFlag uint16

const (
	flagNotNULL       fieldFlag = 0x0001
	flagPriKey        fieldFlag = 0x0002
	flagUniqueKey     fieldFlag = 0x0004
	flagMultipleKey   fieldFlag = 0x0008
	flagBLOB          fieldFlag = 0x0010
	flagUnsigned      fieldFlag = 0x0020
	flagZeroFill      fieldFlag = 0x0040
	flagBinary        fieldFlag = 0x0080
	flagEnum          fieldFlag = 0x0100
	flagAutoIncrement fieldFlag = 0x0200
	flagTimestamp     fieldFlag = 0x0400
	flagSet           fieldFlag = 0x0800
)

// binaryCharsetOpaque is the charset id MySQL uses to mark a column's bytes
// as opaque binary rather than a string in the connection's character set.
const binaryCharsetOpaque = 63
