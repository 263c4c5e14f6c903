package main

import (
	"flag"
	"log"
	"net"
	"os"

	"github.com/flonle/diyredis-server/internal/server"
)

func main() {
	var (
		dir        string
		dbfilename string
		port       string
		bind       string
	)
	flag.StringVar(&dir, "dir", "", "directory reported back by CONFIG GET dir (no RDB file is ever read from it)")
	flag.StringVar(&dbfilename, "dbfilename", "", "filename reported back by CONFIG GET dbfilename")
	flag.StringVar(&port, "port", "6379", "TCP port to listen on")
	flag.StringVar(&bind, "bind", "0.0.0.0", "address to bind the listener to")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	srv := server.New(logger)
	srv.RdbDir = dir
	srv.RdbFilename = dbfilename

	addr := net.JoinHostPort(bind, port)
	logger.Printf("listening on %s", addr)
	if err := srv.Start(addr); err != nil {
		logger.Println(err)
		os.Exit(1)
	}
}
