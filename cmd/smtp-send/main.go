package main

import (
	"bufio"
	_ "embed"
	"flag"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mohau-r/emailjs-smtp-client/smtpclient"
)

//go:embed testdata/example.eml
var eml string

var (
	host     = "127.0.0.1"
	port     = 1025
	from     = "sender@example.com"
	useSSL   = false
	authUser = ""
	authPass = ""
)

func init() {
	flag.StringVar(&host, "h", host, "SMTP server host")
	flag.IntVar(&port, "p", port, "SMTP server port")
	flag.StringVar(&from, "f", from, "Envelope sender address")
	flag.BoolVar(&useSSL, "ssl", useSSL, "Connect with TLS from the start")
	flag.StringVar(&authUser, "u", authUser, "AUTH username")
	flag.StringVar(&authPass, "P", authPass, "AUTH password")
}

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	reader := bufio.NewReader(os.Stdin)
	logger.Info("enter recipients, comma separated")
	recipientsRaw, _ := reader.ReadString('\n')
	recipients := strings.Split(strings.Trim(recipientsRaw, "\r\n "), ",")

	opts := []smtpclient.Option{smtpclient.WithSSL(useSSL)}
	if authUser != "" {
		opts = append(opts, smtpclient.WithAuth(authUser, authPass))
	}

	c := smtpclient.New(host, port, opts...)

	var wg sync.WaitGroup
	wg.Add(1)

	c.OnError = func(err error) {
		logger.Error("session failed", "err", err)
		wg.Done()
	}
	c.OnClose = func() {
		logger.Info("connection closed")
	}
	c.OnIdle = func() {
		if err := c.UseEnvelope(from, recipients); err != nil {
			logger.Error("envelope rejected", "err", err)
			_ = c.Close()
			wg.Done()
		}
	}
	c.OnReady = func(failed []string) {
		if len(failed) > 0 {
			logger.Warn("some recipients rejected", "failed", failed)
		}
		if err := c.Send([]byte(eml)); err != nil {
			logger.Error("send failed", "err", err)
		}
		if err := c.End(); err != nil {
			logger.Error("end data failed", "err", err)
		}
	}
	c.OnDone = func(success bool) {
		logger.Info("delivery finished", "accepted", success)
		_ = c.Quit()
		wg.Done()
	}

	if err := c.Connect(); err != nil {
		logger.Error("connect failed", "err", err)
		os.Exit(1)
	}

	wg.Wait()
}
