// Command authflow-demo walks the authentication flow on the console
// against a real Redis. It stands in for the web front end: every prompt
// corresponds to one screen, and every answer becomes a flow event.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/edudesk/authflow"
	"github.com/edudesk/authflow/forms"
)

type config struct {
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB     int    `env:"REDIS_DB" envDefault:"0"`
	TokenSecret string `env:"TOKEN_SECRET"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"warn"`
}

// consoleSender prints the OTP code instead of delivering it.
type consoleSender struct{}

func (consoleSender) SendCode(_ context.Context, identifier, code string) error {
	fmt.Printf(">> code for %s: %s\n", identifier, code)
	return nil
}

// acceptAllVerifier simulates the credential backend: every submission is
// accepted, and the caller's needs2FA request is honored.
type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyCredentials(_ context.Context, _ authflow.Role, identifier, _ string) (authflow.VerifyResult, error) {
	return authflow.VerifyResult{UserID: identifier, Needs2FA: strings.HasSuffix(identifier, "+2fa")}, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authflow-demo:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return err
	}

	level := slog.LevelWarn
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()

	flowCfg := authflow.DefaultConfig()
	if cfg.TokenSecret != "" {
		flowCfg.Token.Enabled = true
		flowCfg.Token.Secret = []byte(cfg.TokenSecret)
	}

	done := make(chan struct{})
	flow, err := authflow.New().
		WithConfig(flowCfg).
		WithRedis(rdb).
		WithVerifier(acceptAllVerifier{}).
		WithCodeSender(consoleSender{}).
		WithLogger(logger).
		WithCallbacks(authflow.Callbacks{
			OnLoginSuccess: func(role authflow.Role, token string) {
				fmt.Printf("signed in as %s\n", role)
				if token != "" {
					fmt.Printf("session token: %s\n", token)
				}
				close(done)
			},
			OnScreenChange: func(from, to authflow.Screen) {
				fmt.Printf("-- %s -> %s\n", from, to)
			},
		}).
		Build()
	if err != nil {
		return err
	}
	defer flow.Close()

	ctx := context.Background()
	in := bufio.NewScanner(os.Stdin)
	prompt := func(label string) string {
		fmt.Print(label)
		if !in.Scan() {
			return ""
		}
		return strings.TrimSpace(in.Text())
	}

	fmt.Println("append +2fa to an identifier to trigger the second factor")
	for {
		switch flow.CurrentScreen() {
		case authflow.ScreenPortalSelection:
			role := authflow.ParseRole(prompt("portal (admin/teacher/student/parent, q to quit): "))
			if role == authflow.RoleNone {
				return nil
			}
			if err := flow.ChooseRole(role); err != nil {
				fmt.Println("!", err)
			}

		case authflow.ScreenAdminLogin, authflow.ScreenTeacherLogin, authflow.ScreenStudentLogin:
			id := prompt("identifier (empty to go back): ")
			if id == "" {
				_ = flow.Back()
				continue
			}
			secret := prompt("secret: ")
			if err := flow.SubmitLogin(ctx, id, secret, false); err != nil {
				fmt.Println("!", err)
			}

		case authflow.ScreenTwoFactor:
			code := prompt("6-digit code (r to resend, empty to go back): ")
			switch code {
			case "":
				_ = flow.Back()
			case "r":
				if err := flow.ResendCode(ctx); err != nil {
					fmt.Println("!", err)
				}
			default:
				if err := flow.VerifyCode(ctx, forms.OTPCode{Code: code}); err != nil {
					fmt.Println("!", err)
				}
			}

		case authflow.ScreenLoginSuccess:
			<-done
			return nil

		default:
			fmt.Println("screen not wired in the demo:", flow.CurrentScreen())
			return nil
		}
	}
}
