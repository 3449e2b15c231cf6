package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/sentinel/internal/cli"
)

func main() {
	var opts cli.SessionOptions
	flag.StringVar(&opts.StartFile, "start", "", "path to a start-flow response JSON file, or - for stdin")
	flag.StringVar(&opts.ResumeKey, "resume", "", "resume a cached transaction by its id")
	flag.StringVar(&opts.Method, "method", "", "factor to enroll or verify with (otp, sms, push); empty picks the default")
	flag.StringVar(&opts.PhoneNumber, "phone", "", "phone number for SMS enrollment")
	flag.StringVar(&opts.Code, "code", "", "one-time code to confirm or verify with")
	flag.StringVar(&opts.RecoveryCode, "recovery", "", "recovery code, bypasses factor selection")
	flag.Parse()

	cfg := cli.LoadConfig()

	app, err := cli.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, opts); err != nil {
		log.Fatalf("session error: %v", err)
	}
}
