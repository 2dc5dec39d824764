package provider

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// fakeProviderServer answers every SandboxProvider RPC with a canned
// structpb.Struct response, enough to exercise GRPCProvider's encode/decode
// path without a generated protoc client.
type fakeProviderServer struct {
	responses map[string]*structpb.Struct
	lastReq   map[string]*structpb.Struct
}

func methodHandler(s *fakeProviderServer, name string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		s.lastReq[name] = req
		return s.responses[name], nil
	}
}

func newTestGRPCServer(t *testing.T, s *fakeProviderServer) (*GRPCProvider, func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	desc := &grpc.ServiceDesc{
		ServiceName: "leon.provider.v1.SandboxProvider",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Create", Handler: methodHandler(s, "Create")},
			{MethodName: "Status", Handler: methodHandler(s, "Status")},
			{MethodName: "Pause", Handler: methodHandler(s, "Pause")},
			{MethodName: "Resume", Handler: methodHandler(s, "Resume")},
			{MethodName: "Destroy", Handler: methodHandler(s, "Destroy")},
			{MethodName: "Exec", Handler: methodHandler(s, "Exec")},
		},
	}

	srv := grpc.NewServer()
	srv.RegisterService(desc, s)
	go srv.Serve(lis)

	p, err := DialGRPCProvider(GRPCProviderConfig{Name: "remote", Target: lis.Addr().String()},
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("DialGRPCProvider: %v", err)
	}
	return p, func() {
		p.Close()
		srv.Stop()
		lis.Close()
	}
}

func TestGRPCProviderCreate(t *testing.T) {
	resp, _ := structpb.NewStruct(map[string]any{"instance_id": "inst-123"})
	s := &fakeProviderServer{
		responses: map[string]*structpb.Struct{"Create": resp},
		lastReq:   map[string]*structpb.Struct{},
	}
	p, cleanup := newTestGRPCServer(t, s)
	defer cleanup()

	id, err := p.Create(context.Background(), CreateSpec{SessionID: "s1", Cwd: "/tmp", Language: "python"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "inst-123" {
		t.Errorf("id = %q, want inst-123", id)
	}
	if got := s.lastReq["Create"].Fields["session_id"].GetStringValue(); got != "s1" {
		t.Errorf("session_id sent = %q, want s1", got)
	}
}

func TestGRPCProviderStatus(t *testing.T) {
	resp, _ := structpb.NewStruct(map[string]any{"state": "active"})
	s := &fakeProviderServer{
		responses: map[string]*structpb.Struct{"Status": resp},
		lastReq:   map[string]*structpb.Struct{},
	}
	p, cleanup := newTestGRPCServer(t, s)
	defer cleanup()

	state, err := p.Status(context.Background(), "inst-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if string(state) != "active" {
		t.Errorf("state = %q, want active", state)
	}
}

func TestGRPCProviderExec(t *testing.T) {
	resp, _ := structpb.NewStruct(map[string]any{
		"stdout": "hi", "stderr": "", "exit_code": float64(0), "timeout": false,
	})
	s := &fakeProviderServer{
		responses: map[string]*structpb.Struct{"Exec": resp},
		lastReq:   map[string]*structpb.Struct{},
	}
	p, cleanup := newTestGRPCServer(t, s)
	defer cleanup()

	result, err := p.Exec(context.Background(), "inst-1", ExecParams{Language: "python", Code: "print(1)"})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if result.Stdout != "hi" || result.ExitCode != 0 {
		t.Errorf("result = %+v, want stdout=hi exit_code=0", result)
	}
}

func TestGRPCProviderExecRoundTripsTerminalState(t *testing.T) {
	envOut, _ := structpb.NewStruct(map[string]any{"FOO": "bar"})
	resp, _ := structpb.NewStruct(map[string]any{
		"stdout": "", "stderr": "", "exit_code": float64(0), "timeout": false,
		"cwd": "/work/sub", "hydration_blob": "c2Nyb2xsYmFjaw==",
	})
	resp.Fields["env_delta"] = structpb.NewStructValue(envOut)
	s := &fakeProviderServer{
		responses: map[string]*structpb.Struct{"Exec": resp},
		lastReq:   map[string]*structpb.Struct{},
	}
	p, cleanup := newTestGRPCServer(t, s)
	defer cleanup()

	result, err := p.Exec(context.Background(), "inst-1", ExecParams{
		Language: "python", Code: "import os; os.chdir('sub')",
		Cwd: "/work", EnvDelta: map[string]string{"FOO": "baz"},
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if result.Cwd != "/work/sub" {
		t.Errorf("result.Cwd = %q, want /work/sub", result.Cwd)
	}
	if result.EnvDelta["FOO"] != "bar" {
		t.Errorf("result.EnvDelta[FOO] = %q, want bar", result.EnvDelta["FOO"])
	}
	if string(result.HydrationBlob) != "scrollback" {
		t.Errorf("result.HydrationBlob = %q, want scrollback", result.HydrationBlob)
	}

	sentCwd := s.lastReq["Exec"].Fields["cwd"].GetStringValue()
	if sentCwd != "/work" {
		t.Errorf("sent cwd = %q, want /work", sentCwd)
	}
	sentEnv := s.lastReq["Exec"].Fields["env_delta"].GetStructValue()
	if sentEnv.Fields["FOO"].GetStringValue() != "baz" {
		t.Errorf("sent env_delta[FOO] = %q, want baz", sentEnv.Fields["FOO"].GetStringValue())
	}
}

func TestGRPCProviderPauseResumeDestroy(t *testing.T) {
	ok, _ := structpb.NewStruct(map[string]any{})
	s := &fakeProviderServer{
		responses: map[string]*structpb.Struct{"Pause": ok, "Resume": ok, "Destroy": ok},
		lastReq:   map[string]*structpb.Struct{},
	}
	p, cleanup := newTestGRPCServer(t, s)
	defer cleanup()

	if err := p.Pause(context.Background(), "inst-1"); err != nil {
		t.Errorf("Pause: %v", err)
	}
	if err := p.Resume(context.Background(), "inst-1"); err != nil {
		t.Errorf("Resume: %v", err)
	}
	if err := p.Destroy(context.Background(), "inst-1"); err != nil {
		t.Errorf("Destroy: %v", err)
	}
}

func TestGRPCProviderName(t *testing.T) {
	p := &GRPCProvider{name: "remote"}
	if p.Name() != "remote" {
		t.Errorf("Name() = %q, want remote", p.Name())
	}
}
