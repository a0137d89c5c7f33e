package protocol

// ServerOutputEvent gdb server的一行输出
type ServerOutputEvent struct {
	Stream string `json:"stream"` // stdout或stderr
	Line   string `json:"line"`
}

// ServerExitEvent gdb server进程退出
type ServerExitEvent struct {
	Code   int    `json:"code"`
	Signal string `json:"signal"`
}

// ProgressEvent 镜像下载进度
type ProgressEvent struct {
	Percent int `json:"percent"`
}
