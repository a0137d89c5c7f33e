package main

import (
	"flag"
	"fmt"
	"net"

	"github.com/fansqz/embedded-debugger/utils"
	"github.com/sirupsen/logrus"
)

// 定义版本号
const Version = "1.0.0"

func main() {
	SetupLogger()

	showVersion := flag.Bool("version", false, "Show the version number")
	port := flag.String("port", "8889", "TCP port to listen on")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Version: %s\n", Version)
		return
	}

	// 监听端口
	listener, err := net.Listen("tcp", ":"+*port)
	if err != nil {
		logrus.Errorf("[main] listen on port %s fail, err = %v", *port, err)
		return
	}
	defer listener.Close()
	logrus.Infof("[main] started listening at %s", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			logrus.Errorf("[main] accept connection fail, err = %v", err)
			continue
		}
		// 一个连接一个调试会话，互不影响
		id := utils.GetUUID()
		logrus.Infof("[main] accepted session %s from %s", id, conn.RemoteAddr())
		go handleConnection(id, conn)
	}
}
