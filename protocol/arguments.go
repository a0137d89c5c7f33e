package protocol

// LaunchArguments launch请求参数
// 前端在launch请求的arguments中携带，描述目标程序和gdb server的启动方式
type LaunchArguments struct {
	// GDBPath gdb可执行文件路径，默认gdb
	GDBPath string `json:"gdbPath"`
	// Executable 目标程序（elf），用于加载符号和下载镜像
	Executable string `json:"executable"`
	// ServerType gdb server类型，openocd或generic
	ServerType string `json:"servertype"`
	// ServerPath gdb server可执行文件路径
	ServerPath string `json:"serverpath"`
	// ServerArgs gdb server的附加启动参数
	ServerArgs []string `json:"serverArgs"`
	// ConfigFiles openocd的-f配置文件列表
	ConfigFiles []string `json:"configFiles"`
	// Port 期望的gdb server监听端口
	Port int `json:"port"`
	// Cwd 工作目录
	Cwd string `json:"cwd"`
	// SourceFiles 参与全局/静态变量分析的源文件列表
	SourceFiles []string `json:"sourceFiles"`
	// StartMatch/ErrorMatch generic类型server的就绪/出错匹配串
	StartMatch string `json:"startMatch"`
	ErrorMatch string `json:"errorMatch"`
}

// AttachArguments attach请求参数
// 与launch一致，但不做镜像下载和复位
type AttachArguments struct {
	LaunchArguments
}
