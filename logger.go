package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

var logPath = "/var/embedded-debugger.log"

// SetupLogger 初始化日志
// dap协议走标准io的场景日志不能混进stdout，统一落文件；
// 在终端里调试运行时额外输出到stderr
func SetupLogger() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		logrus.SetOutput(os.Stderr)
		logrus.Warnf("[logger] open log file %s fail, err = %v", logPath, err)
		return
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetOutput(io.MultiWriter(logFile, os.Stderr))
	} else {
		logrus.SetOutput(logFile)
	}
}
