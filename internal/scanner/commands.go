// internal/scanner/commands.go
package scanner

// Remote commands understood by the scanner. Every reply echoes the
// command name as its first field.
const (
	CmdModel            = "MDL" // model identifier
	CmdEnterProgramming = "PRG" // enter programming mode
	CmdMemoryUsed       = "MEM" // memory used, percent
	CmdSystemCount      = "SCT" // number of systems
	CmdSystemHead       = "SIH" // index of the first system
	CmdSystemInfo       = "SIN" // SIN,<index>: system record
	CmdForward          = "FWD" // FWD,<index>: index of the next system
	CmdExitProgramming  = "EPG" // exit programming mode
)

const (
	// StatusOK is the success status for PRG and EPG
	StatusOK = "OK"

	// ResponseError is sent by the scanner for a command it could not parse
	ResponseError = "ERR"

	// EndOfList terminates the system list
	EndOfList = 0
)
