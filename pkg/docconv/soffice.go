package docconv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
)

// convertViaSoffice shells out to a local LibreOffice headless conversion
// for any format excelize can't handle in-process. The subprocess has a
// hard wall-clock timeout; once it exits, the output file is polled for
// with bounded exponential backoff since soffice can return before the
// PDF is fully flushed to disk.
func (s *Service) convertViaSoffice(ctx context.Context, fileName, fileExtension string, data []byte) ([]byte, error) {
	sofficePath := "soffice"
	pollMin := 200 * time.Millisecond
	pollMax := 2 * time.Second
	maxAttempts := uint(10)
	if s.cfg != nil {
		if s.cfg.SofficePath != "" {
			sofficePath = s.cfg.SofficePath
		}
		if s.cfg.PollMinInterval > 0 {
			pollMin = s.cfg.PollMinInterval
		}
		if s.cfg.PollMaxInterval > 0 {
			pollMax = s.cfg.PollMaxInterval
		}
		if s.cfg.MaxPollAttempts > 0 {
			maxAttempts = uint(s.cfg.MaxPollAttempts)
		}
	}

	dir, err := os.MkdirTemp("", "docconv-*")
	if err != nil {
		return nil, fmt.Errorf("create conversion temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input"+fileExtension)
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write conversion input: %w", err)
	}

	timeout := conversionTimeout(s.cfg)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, sofficePath, "--headless", "--convert-to", "pdf", "--outdir", dir, inPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		if runCtx.Err() != nil {
			return nil, errs.Wrap(errs.UpstreamTimeout, "document conversion subprocess timed out", runCtx.Err())
		}
		return nil, errs.Wrap(errs.UpstreamUnavailable, "document conversion subprocess failed: "+string(out), err)
	}

	outPath := filepath.Join(dir, "input.pdf")
	return pollForFile(runCtx, outPath, pollMin, pollMax, maxAttempts)
}

// pollForFile waits for path to exist, backing off exponentially between
// checks (spec §4 "bounded exponential-backoff" poll).
func pollForFile(ctx context.Context, path string, minInterval, maxInterval time.Duration, maxAttempts uint) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = minInterval
	bo.MaxInterval = maxInterval
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.2
	bo.Reset()

	var lastErr error
	for attempt := uint(0); attempt < maxAttempts; attempt++ {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		lastErr = err

		delay := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.UpstreamTimeout, "document conversion output never appeared", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, errs.Wrap(errs.UpstreamUnavailable, "document conversion output file missing after polling", lastErr)
}
