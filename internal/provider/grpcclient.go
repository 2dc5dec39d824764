package provider

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/leon-agent/leon/internal/models"
)

// GRPCProviderConfig configures a connection to an out-of-process provider
// daemon (§1: "concrete sandbox providers are external collaborators").
type GRPCProviderConfig struct {
	Name   string // provider name as recorded on the lease
	Target string // grpc dial target, e.g. "unix:///var/run/leon/provider.sock"
}

// GRPCProvider is a SandboxProvider that delegates every verb to a remote
// provider daemon over gRPC. Request/response payloads are generic
// structpb.Struct envelopes rather than a committed protoc-generated
// client: Leon's provider wire contract is deliberately small and stable
// (five verbs, string/enum fields), so a hand-maintained schema next to
// the dial code is less churn than regenerating stubs per provider.
type GRPCProvider struct {
	name string
	conn *grpc.ClientConn
}

// DialGRPCProvider opens the connection. The caller owns the returned
// provider's lifetime and should call Close when done with it.
func DialGRPCProvider(cfg GRPCProviderConfig, opts ...grpc.DialOption) (*GRPCProvider, error) {
	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("provider: dial %s: %w", cfg.Target, err)
	}
	return &GRPCProvider{name: cfg.Name, conn: conn}, nil
}

// Close releases the underlying gRPC connection.
func (g *GRPCProvider) Close() error {
	return g.conn.Close()
}

// Name identifies this provider in lease.Provider bookkeeping.
func (g *GRPCProvider) Name() string { return g.name }

const serviceMethodPrefix = "/leon.provider.v1.SandboxProvider/"

func (g *GRPCProvider) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, serviceMethodPrefix+method, req, resp); err != nil {
		return nil, fmt.Errorf("provider: %s: %w", method, err)
	}
	return resp, nil
}

// Create provisions a new instance on the remote provider.
func (g *GRPCProvider) Create(ctx context.Context, spec CreateSpec) (string, error) {
	envDelta := make(map[string]any, len(spec.EnvDelta))
	for k, v := range spec.EnvDelta {
		envDelta[k] = v
	}
	req, err := structpb.NewStruct(map[string]any{
		"session_id":     spec.SessionID,
		"cwd":            spec.Cwd,
		"language":       spec.Language,
		"env_delta":      envDelta,
		"hydration_blob": base64.StdEncoding.EncodeToString(spec.HydrationBlob),
	})
	if err != nil {
		return "", fmt.Errorf("provider: encode create request: %w", err)
	}
	resp, err := g.invoke(ctx, "Create", req)
	if err != nil {
		return "", err
	}
	return resp.Fields["instance_id"].GetStringValue(), nil
}

// Status queries the remote provider for an instance's observed state.
func (g *GRPCProvider) Status(ctx context.Context, instanceID string) (models.SandboxObservedState, error) {
	req, _ := structpb.NewStruct(map[string]any{"instance_id": instanceID})
	resp, err := g.invoke(ctx, "Status", req)
	if err != nil {
		return models.ObservedUnknown, err
	}
	return models.SandboxObservedState(resp.Fields["state"].GetStringValue()), nil
}

// Pause requests the remote provider suspend an instance.
func (g *GRPCProvider) Pause(ctx context.Context, instanceID string) error {
	req, _ := structpb.NewStruct(map[string]any{"instance_id": instanceID})
	_, err := g.invoke(ctx, "Pause", req)
	return err
}

// Resume requests the remote provider reactivate an instance.
func (g *GRPCProvider) Resume(ctx context.Context, instanceID string) error {
	req, _ := structpb.NewStruct(map[string]any{"instance_id": instanceID})
	_, err := g.invoke(ctx, "Resume", req)
	return err
}

// Destroy requests the remote provider tear down an instance.
func (g *GRPCProvider) Destroy(ctx context.Context, instanceID string) error {
	req, _ := structpb.NewStruct(map[string]any{"instance_id": instanceID})
	_, err := g.invoke(ctx, "Destroy", req)
	return err
}

// Exec implements CommandExecutor, running one command inside an
// already-provisioned instance over the same envelope the lifecycle verbs
// use.
func (g *GRPCProvider) Exec(ctx context.Context, instanceID string, params ExecParams) (ExecResult, error) {
	files := make(map[string]any, len(params.Files))
	for name, contents := range params.Files {
		files[name] = contents
	}
	envDelta := make(map[string]any, len(params.EnvDelta))
	for k, v := range params.EnvDelta {
		envDelta[k] = v
	}
	req, err := structpb.NewStruct(map[string]any{
		"instance_id": instanceID,
		"language":    params.Language,
		"code":        params.Code,
		"stdin":       params.Stdin,
		"files":       files,
		"timeout":     float64(params.Timeout),
		"cpu_limit":   float64(params.CPULimit),
		"mem_limit":   float64(params.MemLimit),
		"cwd":         params.Cwd,
		"env_delta":   envDelta,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("provider: encode exec request: %w", err)
	}
	resp, err := g.invoke(ctx, "Exec", req)
	if err != nil {
		return ExecResult{}, err
	}
	result := ExecResult{
		Stdout:   resp.Fields["stdout"].GetStringValue(),
		Stderr:   resp.Fields["stderr"].GetStringValue(),
		ExitCode: int(resp.Fields["exit_code"].GetNumberValue()),
		Timeout:  resp.Fields["timeout"].GetBoolValue(),
		Cwd:      resp.Fields["cwd"].GetStringValue(),
	}
	if envOut := resp.Fields["env_delta"].GetStructValue(); envOut != nil {
		result.EnvDelta = make(map[string]string, len(envOut.Fields))
		for k, v := range envOut.Fields {
			result.EnvDelta[k] = v.GetStringValue()
		}
	}
	if blob := resp.Fields["hydration_blob"].GetStringValue(); blob != "" {
		if decoded, err := base64.StdEncoding.DecodeString(blob); err == nil {
			result.HydrationBlob = decoded
		}
	}
	return result, nil
}

var _ CommandExecutor = (*GRPCProvider)(nil)
