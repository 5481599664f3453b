package encoder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	rssh "github.com/viant/gosh/runner/ssh"
	"github.com/viant/scy/cred/secret"
	"golang.org/x/crypto/ssh"
)

// Runner executes encoder commands through gosh shell sessions. Sessions
// are cached per host.
type Runner struct {
	config   Config
	host     *Host
	env      map[string]string
	fs       afs.Service
	sessions map[string]*sessionInfo
	mux      sync.Mutex
}

type sessionInfo struct {
	service *gosh.Service
}

var _ Service = (*Runner)(nil)

// Option customises a Runner.
type Option func(r *Runner)

// WithHost directs invocations at a specific (possibly remote) host.
func WithHost(host *Host) Option {
	return func(r *Runner) { r.host = host }
}

// WithEnv sets environment variables for encoder processes.
func WithEnv(env map[string]string) Option {
	return func(r *Runner) { r.env = env }
}

// New creates a gosh-backed encoder runner.
func New(config Config, options ...Option) *Runner {
	ret := &Runner{
		config:   config,
		fs:       afs.New(),
		sessions: make(map[string]*sessionInfo),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.host == nil {
		ret.host = &Host{}
	}
	if ret.host.URL == "" {
		ret.host.URL = "bash://localhost/"
	}
	return ret
}

// Encode runs one ffmpeg invocation and verifies the output artefact. A
// failed encode (non-zero exit, missing output) is reported through the
// Result; errors are reserved for infrastructure problems and timeouts.
func (r *Runner) Encode(ctx context.Context, invocation *Invocation) (*Result, error) {
	session, err := r.getSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	started := time.Now()
	command := r.config.encodeCommand(invocation)
	stdout, status, runErr := session.service.Run(ctx, command, encodeRunOptions(invocation.Timeout)...)
	if timeout := invocation.Timeout; timeout > 0 {
		if elapsed := time.Since(started); elapsed >= timeout {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, elapsed)
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	result := &Result{ExitCode: status}
	if status != 0 {
		result.Stderr = strings.TrimSpace(stdout)
		if result.Stderr == "" && runErr != nil {
			result.Stderr = runErr.Error()
		}
		return result, nil
	}
	if runErr != nil {
		return nil, fmt.Errorf("failed to run encoder: %w", runErr)
	}

	exists, err := r.fs.Exists(ctx, invocation.OutputURL)
	if err != nil {
		return nil, fmt.Errorf("failed to verify output %s: %w", invocation.OutputURL, err)
	}
	if !exists {
		result.OutputMissing = true
		return result, nil
	}
	if object, err := r.fs.Object(ctx, invocation.OutputURL); err == nil {
		result.OutputSize = object.Size()
	}
	return result, nil
}

// encodeRunOptions bounds the shell run when a per-task timeout is
// configured. A zero timeout leaves the encode unbounded.
func encodeRunOptions(timeout time.Duration) []runner.Option {
	if timeout <= 0 {
		return nil
	}
	return []runner.Option{runner.WithTimeout(int(timeout.Milliseconds()))}
}

// probeOutput mirrors the subset of ffprobe JSON the engine needs.
type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe extracts dimensions and duration from a source file via ffprobe.
func (r *Runner) Probe(ctx context.Context, URL string) (*Metadata, error) {
	session, err := r.getSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	stdout, status, err := session.service.Run(ctx, r.config.probeCommand(URL))
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", URL, err)
	}
	if status != 0 {
		return nil, fmt.Errorf("failed to probe %s: exit %d: %s", URL, status, strings.TrimSpace(stdout))
	}
	var probed probeOutput
	if err := json.Unmarshal([]byte(stdout), &probed); err != nil {
		return nil, fmt.Errorf("failed to parse probe output for %s: %w", URL, err)
	}
	metadata := &Metadata{}
	for _, stream := range probed.Streams {
		if stream.Width > 0 && stream.Height > 0 {
			metadata.Width = stream.Width
			metadata.Height = stream.Height
			break
		}
	}
	if probed.Format.Duration != "" {
		metadata.Duration, _ = strconv.ParseFloat(probed.Format.Duration, 64)
	}
	if probed.Format.Size != "" {
		metadata.Size, _ = strconv.ParseInt(probed.Format.Size, 10, 64)
	}
	if metadata.Width == 0 || metadata.Height == 0 {
		return nil, fmt.Errorf("no video stream found in %s", URL)
	}
	return metadata, nil
}

// getSession retrieves an existing session for the configured host or
// creates a new one.
func (r *Runner) getSession(ctx context.Context) (*sessionInfo, error) {
	r.mux.Lock()
	defer r.mux.Unlock()

	if session, ok := r.sessions[r.host.URL]; ok {
		return session, nil
	}

	envOptions := []runner.Option{}
	if len(r.env) > 0 {
		envOptions = append(envOptions, runner.WithEnvironment(r.env))
	}

	var service *gosh.Service
	var err error
	if url.Host(r.host.URL) == "localhost" {
		service, err = gosh.New(ctx, local.New(envOptions...))
	} else {
		config, cfgErr := r.sshConfig(ctx)
		if cfgErr != nil {
			return nil, fmt.Errorf("failed to get SSH config: %w", cfgErr)
		}
		sshHost := url.Host(r.host.URL)
		if !strings.Contains(sshHost, ":") {
			sshHost += ":22"
		}
		service, err = gosh.New(ctx, rssh.New(sshHost, config, envOptions...))
	}
	if err != nil {
		return nil, err
	}
	session := &sessionInfo{service: service}
	r.sessions[r.host.URL] = session
	return session, nil
}

// sshConfig resolves ssh credentials for the host through scy secrets.
func (r *Runner) sshConfig(ctx context.Context) (*ssh.ClientConfig, error) {
	credentials := r.host.Credentials
	if credentials == "" {
		credentials = "localhost"
	}
	secrets := secret.New()
	generic, err := secrets.GetCredentials(ctx, credentials)
	if err != nil {
		return nil, err
	}
	return generic.SSH.Config(ctx)
}

// Close releases all sessions held by this runner.
func (r *Runner) Close() error {
	r.mux.Lock()
	defer r.mux.Unlock()
	var errs []string
	for id, session := range r.sessions {
		if err := session.service.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("failed to close session %s: %v", id, err))
		}
	}
	r.sessions = make(map[string]*sessionInfo)
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sessions: %s", strings.Join(errs, "; "))
	}
	return nil
}
