package dyndns

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultHostCommand is the Home Assistant CLI.
	DefaultHostCommand = "/usr/bin/ha"

	// DefaultHostMaxOutput bounds how much of the command's output is read.
	DefaultHostMaxOutput = 4 << 20

	maxStderr = 4 << 10
)

// DefaultHostArgs are the arguments given to DefaultHostCommand.
var DefaultHostArgs = []string{"network", "info"}

// HostSource enumerates interfaces as reported by a host management command,
// by default "ha network info" on Home Assistant OS.
//
// The command must print a YAML (or JSON) document of the form
//
//	interfaces:
//	  - interface: eth0
//	    ipv4: {address: [192.0.2.10/24], gateway: 192.0.2.1, method: static, nameservers: [192.0.2.1], ready: true}
//	    ipv6: {address: [2001:db8::10/64], gateway: null, method: auto, nameservers: [], ready: true}
//
// Keys are matched without regard to case and unknown keys are ignored.
type HostSource struct {
	Command   string   // defaults to DefaultHostCommand
	Args      []string // defaults to DefaultHostArgs when Command is empty
	MaxOutput int64    // defaults to DefaultHostMaxOutput

	logger *slog.Logger
}

func (s *HostSource) SetLogger(logger *slog.Logger) { s.logger = logger }

// Interfaces implements InterfaceSource.
//
// A command that cannot be started, exits non-zero, prints more than MaxOutput bytes,
// or prints a document that cannot be decoded is an ErrEnumeration.
func (s *HostSource) Interfaces(ctx context.Context) ([]NetworkInterface, error) {
	logger := s.logger
	if logger == nil {
		logger = discard
	}
	name, args := s.Command, s.Args
	if name == "" {
		name, args = DefaultHostCommand, DefaultHostArgs
	}
	limit := s.MaxOutput
	if limit <= 0 {
		limit = DefaultHostMaxOutput
	}

	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &capWriter{max: maxStderr}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEnumeration, name, err)
	}
	logger.Debug("running host manager", slog.String("command", name), slog.Any("args", args))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %w", ErrEnumeration, name, err)
	}

	out, readErr := io.ReadAll(io.LimitReader(stdout, limit+1))
	if int64(len(out)) > limit {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("%w: %s printed more than %d bytes", ErrEnumeration, name, limit)
	}
	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s: %w: %s", ErrEnumeration, name, err, msg)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrEnumeration, name, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: reading output of %s: %w", ErrEnumeration, name, readErr)
	}

	ifaces, err := DecodeHostNetworkInfo(bytes.NewReader(out))
	if err != nil {
		return nil, err
	}
	logger.Debug("enumerated host manager interfaces", slog.Int("count", len(ifaces)))
	return ifaces, nil
}

type hostNetworkInfo struct {
	Interfaces *[]hostInterface `yaml:"interfaces"`
}

type hostInterface struct {
	Interface string        `yaml:"interface"`
	IPv4      *hostIPConfig `yaml:"ipv4"`
	IPv6      *hostIPConfig `yaml:"ipv6"`
}

type hostIPConfig struct {
	Address     []string `yaml:"address"`
	Gateway     string   `yaml:"gateway"`
	Method      string   `yaml:"method"`
	Nameservers []string `yaml:"nameservers"`
	Ready       bool     `yaml:"ready"`
}

func (c *hostIPConfig) ipConfig() *IPConfig {
	if c == nil {
		return nil
	}
	return &IPConfig{
		Address:     c.Address,
		Gateway:     c.Gateway,
		Method:      c.Method,
		Nameservers: c.Nameservers,
		Ready:       c.Ready,
	}
}

// DecodeHostNetworkInfo decodes the output of "ha network info".
// Either every interface is returned or an ErrEnumeration is.
func DecodeHostNetworkInfo(r io.Reader) ([]NetworkInterface, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: host network info is empty", ErrEnumeration)
		}
		return nil, fmt.Errorf("%w: parsing host network info: %w", ErrEnumeration, err)
	}
	lowerKeys(&doc)

	var info hostNetworkInfo
	if err := doc.Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decoding host network info: %w", ErrEnumeration, err)
	}
	if info.Interfaces == nil {
		return nil, fmt.Errorf("%w: host network info has no interfaces key", ErrEnumeration)
	}

	ifaces := make([]NetworkInterface, 0, len(*info.Interfaces))
	for _, hi := range *info.Interfaces {
		ni, err := NewNetworkInterface(hi.Interface, hi.IPv4.ipConfig(), hi.IPv6.ipConfig())
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", hi.Interface, err)
		}
		ifaces = append(ifaces, ni)
	}
	return ifaces, nil
}

// lowerKeys lower-cases every mapping key so that "IPv4", "ipv4" and "Ipv4" decode alike.
func lowerKeys(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			n.Content[i].Value = strings.ToLower(n.Content[i].Value)
		}
	}
	for _, c := range n.Content {
		lowerKeys(c)
	}
}

// capWriter keeps the first max bytes written to it and drops the rest.
type capWriter struct {
	buf bytes.Buffer
	max int
}

func (w *capWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}

func (w *capWriter) String() string { return w.buf.String() }
