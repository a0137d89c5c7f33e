package gdbserver

import (
	"fmt"
	"strings"
)

const DefaultGDBPort = 3333

// OpenOCDController openocd类型的gdb server
type OpenOCDController struct {
	Executable  string
	ConfigFiles []string
	Port        int
}

func NewOpenOCDController(executable string, configFiles []string, port int) *OpenOCDController {
	if executable == "" {
		executable = "openocd"
	}
	if port == 0 {
		port = DefaultGDBPort
	}
	return &OpenOCDController{
		Executable:  executable,
		ConfigFiles: configFiles,
		Port:        port,
	}
}

func (o *OpenOCDController) LaunchCommand() (string, []string, []string) {
	args := []string{"-c", fmt.Sprintf("gdb_port %d", o.Port)}
	for _, file := range o.ConfigFiles {
		args = append(args, "-f", file)
	}
	return o.Executable, args, nil
}

func (o *OpenOCDController) ServerStarted(line string) bool {
	return strings.Contains(line, "Listening on port") &&
		strings.Contains(line, "for gdb connections")
}

func (o *OpenOCDController) ServerError(line string) bool {
	return strings.Contains(line, "Error:")
}

func (o *OpenOCDController) ResolvePort(requested int) int {
	if requested != 0 {
		return requested
	}
	return o.Port
}

func (o *OpenOCDController) InitCommands() []string {
	return []string{"monitor halt"}
}

// GenericController 用匹配串配置的通用gdb server（st-util、JLink等）
type GenericController struct {
	Executable string
	Args       []string
	Port       int
	// StartMatch/ErrorMatch 就绪和出错的行匹配串
	StartMatch string
	ErrorMatch string
}

func NewGenericController(executable string, args []string, port int, startMatch, errorMatch string) *GenericController {
	if port == 0 {
		port = DefaultGDBPort
	}
	if startMatch == "" {
		startMatch = "Listening"
	}
	if errorMatch == "" {
		errorMatch = "error"
	}
	return &GenericController{
		Executable: executable,
		Args:       args,
		Port:       port,
		StartMatch: startMatch,
		ErrorMatch: errorMatch,
	}
}

func (g *GenericController) LaunchCommand() (string, []string, []string) {
	return g.Executable, g.Args, nil
}

func (g *GenericController) ServerStarted(line string) bool {
	return strings.Contains(line, g.StartMatch)
}

func (g *GenericController) ServerError(line string) bool {
	return strings.Contains(strings.ToLower(line), strings.ToLower(g.ErrorMatch))
}

func (g *GenericController) ResolvePort(requested int) int {
	if requested != 0 {
		return requested
	}
	return g.Port
}

func (g *GenericController) InitCommands() []string {
	return nil
}
