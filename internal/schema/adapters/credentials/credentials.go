package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/config"
	"github.com/indexvault-go/pkg/logger"
)

var (
	_ ports.CredentialProvider = (*StaticProvider)(nil)
	_ ports.CredentialProvider = (*CommandProvider)(nil)
)

// ErrNoCredentials is returned when neither a key nor a command is configured.
var ErrNoCredentials = errors.New("no search admin key configured")

// NewFromConfig prefers the command over a static key so rotated keys are
// always fetched fresh.
func NewFromConfig(cfg config.CredentialsConfig, log logger.Logger) (ports.CredentialProvider, error) {
	switch {
	case cfg.Command != "":
		return NewCommandProvider(cfg.Command, cfg.Args, cfg.Timeout, log), nil
	case cfg.APIKey != "":
		return NewStaticProvider(cfg.APIKey), nil
	default:
		return nil, ErrNoCredentials
	}
}

// StaticProvider returns the same key for every service.
type StaticProvider struct {
	key string
}

func NewStaticProvider(key string) *StaticProvider {
	return &StaticProvider{key: key}
}

func (p *StaticProvider) AdminKey(ctx context.Context, serviceName string) (string, error) {
	if p.key == "" {
		return "", ErrNoCredentials
	}
	return p.key, nil
}

// CommandProvider runs an external command and uses its trimmed stdout as the
// admin key. The service name is passed as INDEXVAULT_SERVICE_NAME.
type CommandProvider struct {
	command string
	args    []string
	timeout time.Duration
	logger  logger.Logger
}

func NewCommandProvider(command string, args []string, timeout time.Duration, log logger.Logger) *CommandProvider {
	if log == nil {
		log = logger.NewNop()
	}
	return &CommandProvider{command: command, args: args, timeout: timeout, logger: log}
}

func (p *CommandProvider) AdminKey(ctx context.Context, serviceName string) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	cmd.Env = append(os.Environ(), "INDEXVAULT_SERVICE_NAME="+serviceName)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// stderr is not included; credential tools may echo secrets there.
		return "", fmt.Errorf("credential command %s failed: %w", p.command, err)
	}

	key := strings.TrimSpace(stdout.String())
	if key == "" {
		return "", fmt.Errorf("credential command %s printed no key", p.command)
	}

	p.logger.Debug("Fetched admin key", "service", serviceName)
	return key, nil
}
