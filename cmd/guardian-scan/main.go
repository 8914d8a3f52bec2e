package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
	"github.com/autoguardian/autoguardian/internal/di"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(func(logger *zap.Logger, service *core.ScanService) error {
		return runScan(flags, logger, service)
	}); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

func runScan(flags *di.CLIFlags, logger *zap.Logger, service *core.ScanService) error {
	defer logger.Sync()

	// Read email from file or stdin
	var emailReader io.Reader
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", flags.InputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	parsed, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	from := parsed.Header.Get("From")
	to := parsed.Header.Get("To")
	subject := parsed.Header.Get("Subject")

	bodyBytes, err := io.ReadAll(parsed.Body)
	if err != nil {
		logger.Fatal("Failed to read email body", zap.Error(err))
	}

	msg := &core.Message{
		ID:         strings.Trim(parsed.Header.Get("Message-Id"), "<> "),
		From:       from,
		To:         strings.Split(to, ","),
		Subject:    subject,
		Body:       string(bodyBytes),
		Headers:    make(map[string][]string),
		ReceivedAt: time.Now().UTC(),
	}
	if msg.ID == "" {
		msg.ID = "cli-scan"
	}
	for k, v := range parsed.Header {
		msg.Headers[k] = v
	}

	user := core.UserContext{
		UserID: flags.UserEmail,
		Email:  flags.UserEmail,
		Plan:   flags.UserPlan,
		Locale: flags.UserLocale,
	}

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", from)
	fmt.Printf("To: %s\n", to)
	fmt.Printf("Subject: %s\n", subject)
	fmt.Printf("Body length: %d bytes\n", len(msg.Body))
	fmt.Printf("\n=== Analysis ===\n")
	fmt.Printf("Content provider: %s\n", flags.ContentProvider)
	fmt.Printf("Transformer provider: %s\n", flags.TransformerProvider)

	startTime := time.Now()
	result, err := service.Scan(context.Background(), msg, user)
	if err != nil {
		logger.Fatal("Failed to scan email", zap.Error(err))
	}
	duration := time.Since(startTime)

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Risk tier: %s\n", result.Tier)
	fmt.Printf("Risk score: %.2f\n", result.Score)
	fmt.Printf("Quarantine: %t\n", result.Quarantine)
	fmt.Printf("Confidence: %s (correlation %.2f)\n", result.Confidence, result.CorrelationScore)
	if len(result.MatchedRules) > 0 {
		fmt.Printf("Matched rules: %s\n", strings.Join(result.MatchedRules, ", "))
	}
	for _, reason := range result.Reasons {
		fmt.Printf("Reason: %s\n", reason)
	}
	if result.CommunityAlert {
		fmt.Printf("Community alert: this campaign has been seen by other accounts\n")
	}
	fmt.Printf("Processing time: %v\n", duration)

	return nil
}
