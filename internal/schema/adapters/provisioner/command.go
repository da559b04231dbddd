package provisioner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/indexvault-go/internal/domain/lifecycle"
	"github.com/indexvault-go/internal/schema/ports"
	"github.com/indexvault-go/pkg/config"
	"github.com/indexvault-go/pkg/logger"
)

var _ ports.Provisioner = (*CommandProvisioner)(nil)

// ErrNotConfigured is returned when no command is set for the requested action.
var ErrNotConfigured = errors.New("provisioning command not configured")

// CommandProvisioner delegates service creation and deletion to external
// executables, typically an infrastructure-as-code wrapper script.
//
// Provision writes the parameters as JSON to stdin, exports them as
// INDEXVAULT_* variables, and expects {"serviceName": ..., "endpoint": ...}
// as the last JSON object on stdout.
type CommandProvisioner struct {
	command            string
	args               []string
	deprovisionCommand string
	deprovisionArgs    []string
	timeout            time.Duration
	logger             logger.Logger
}

func NewCommandProvisioner(cfg config.ProvisioningConfig, log logger.Logger) *CommandProvisioner {
	if log == nil {
		log = logger.NewNop()
	}
	return &CommandProvisioner{
		command:            cfg.Command,
		args:               cfg.Args,
		deprovisionCommand: cfg.DeprovisionCommand,
		deprovisionArgs:    cfg.DeprovisionArgs,
		timeout:            cfg.Timeout,
		logger:             log,
	}
}

func (p *CommandProvisioner) Provision(ctx context.Context, params lifecycle.ProvisionParams) (lifecycle.ServiceInstance, error) {
	if p.command == "" {
		return lifecycle.ServiceInstance{}, ErrNotConfigured
	}

	input, err := json.Marshal(params)
	if err != nil {
		return lifecycle.ServiceInstance{}, fmt.Errorf("failed to encode provisioning parameters: %w", err)
	}

	env := append(provisionEnv(params), "INDEXVAULT_ACTION=provision")
	stdout, err := p.run(ctx, p.command, p.args, input, env)
	if err != nil {
		return lifecycle.ServiceInstance{}, err
	}

	instance, err := parseInstance(stdout)
	if err != nil {
		return lifecycle.ServiceInstance{}, err
	}
	if instance.Name == "" {
		instance.Name = params.ServiceName
	}
	if instance.Name != params.ServiceName {
		return lifecycle.ServiceInstance{}, fmt.Errorf("provisioning command returned service %q, expected %q", instance.Name, params.ServiceName)
	}
	instance.SKU = params.SKU
	instance.Region = params.Region
	instance.ReplicaCount = params.ReplicaCount
	instance.PartitionCount = params.PartitionCount

	p.logger.Info("Provisioning command finished", "service", instance.Name, "endpoint", instance.Endpoint)
	return instance, nil
}

func (p *CommandProvisioner) Deprovision(ctx context.Context, serviceName string) error {
	command, args := p.deprovisionCommand, p.deprovisionArgs
	if command == "" {
		if p.command == "" {
			return ErrNotConfigured
		}
		// The provisioning command handles both actions when no separate
		// deprovision command is configured.
		command, args = p.command, p.args
	}

	input, err := json.Marshal(map[string]string{"serviceName": serviceName})
	if err != nil {
		return err
	}

	env := []string{
		"INDEXVAULT_ACTION=deprovision",
		"INDEXVAULT_SERVICE_NAME=" + serviceName,
	}
	if _, err := p.run(ctx, command, args, input, env); err != nil {
		return err
	}

	p.logger.Info("Deprovisioning command finished", "service", serviceName)
	return nil
}

func (p *CommandProvisioner) run(ctx context.Context, command string, args []string, input []byte, env []string) ([]byte, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	p.logger.Debug("Running provisioning command", "command", command, "args", args)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("provisioning command %s aborted after %s: %w", command, time.Since(start).Round(time.Second), ctx.Err())
		}
		return nil, fmt.Errorf("provisioning command %s failed: %w: %s", command, err, strings.TrimSpace(stderr.String()))
	}

	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		p.logger.Debug("Provisioning command stderr", "command", command, "output", msg)
	}
	return stdout.Bytes(), nil
}

func provisionEnv(params lifecycle.ProvisionParams) []string {
	env := []string{
		"INDEXVAULT_SERVICE_NAME=" + params.ServiceName,
		"INDEXVAULT_SKU=" + params.SKU,
		"INDEXVAULT_REGION=" + params.Region,
		"INDEXVAULT_REPLICA_COUNT=" + strconv.Itoa(params.ReplicaCount),
		"INDEXVAULT_PARTITION_COUNT=" + strconv.Itoa(params.PartitionCount),
	}
	for key, value := range params.Parameters {
		name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
		env = append(env, "INDEXVAULT_PARAM_"+name+"="+value)
	}
	return env
}

// parseInstance takes the last line of stdout that decodes as a JSON object,
// so wrapper scripts may print progress before the result.
func parseInstance(stdout []byte) (lifecycle.ServiceInstance, error) {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var instance lifecycle.ServiceInstance
		if err := json.Unmarshal([]byte(line), &instance); err != nil {
			continue
		}
		if instance.Endpoint == "" {
			return lifecycle.ServiceInstance{}, errors.New("provisioning command returned no endpoint")
		}
		return instance, nil
	}

	// A multi-line JSON document.
	var instance lifecycle.ServiceInstance
	if err := json.Unmarshal(stdout, &instance); err == nil && instance.Endpoint != "" {
		return instance, nil
	}
	return lifecycle.ServiceInstance{}, errors.New("provisioning command printed no service description")
}
