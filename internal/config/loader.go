package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Default config file locations, probed in order when CANARY_CONFIG is unset.
var configPaths = []string{
	"competition.yaml",
	"/app/competition.yaml",
	"/config/competition.yaml",
}

const defaultAddr = ":8080"

// Load builds a Config by layering defaults, the competition file, and env.
// Order of precedence (low -> high):.
//  1. defaults
//  2. competition.yaml (path override via CANARY_CONFIG)
//  3. env (prefix CANARY_)
func Load() (*Config, error) {
	k := koanf.New(".")

	path, err := resolvePath()
	if err != nil {
		return nil, err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
	}

	// Environment variables: CANARY_ADDR, ...
	envProvider := env.Provider("CANARY_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "canary_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	var raw rawConfig
	if err := k.UnmarshalWithConf("", &raw, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := &Config{Addr: raw.Addr}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	for _, rc := range raw.Competitions {
		comp, err := rc.build()
		if err != nil {
			return nil, err
		}
		cfg.Competitions = append(cfg.Competitions, *comp)
	}
	if len(cfg.Competitions) == 0 {
		return nil, fmt.Errorf("%w: no competitions in %s", ErrInvalidConfig, path)
	}
	return cfg, nil
}

func resolvePath() (string, error) {
	if p := os.Getenv("CANARY_CONFIG"); p != "" {
		return p, nil
	}
	for _, p := range configPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: competition.yaml not found", ErrLoadConfig)
}

// Raw shapes mirror the YAML layout; unknown fields are ignored by koanf.

type rawConfig struct {
	Addr         string           `koanf:"addr"`
	Competitions []rawCompetition `koanf:"competitions"`
}

type rawCompetition struct {
	Name   string     `koanf:"name"`
	Redis  rawRedis   `koanf:"redis"`
	Teams  []rawTeam  `koanf:"teams"`
	Boxes  []rawBox   `koanf:"boxes"`
	Checks []rawCheck `koanf:"checks"`
}

type rawRedis struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	DB   int    `koanf:"db"`
}

type rawTeam struct {
	Name string `koanf:"name"`
}

type rawBox struct {
	Name     string      `koanf:"name"`
	Labels   interface{} `koanf:"labels"` // scalar or list
	Hostname string      `koanf:"hostname"`
	Cores    uint32      `koanf:"cores"`
	RAMMB    uint32      `koanf:"ram_mb"`
}

type rawCheck struct {
	Name        string                 `koanf:"name"`
	Interval    int64                  `koanf:"interval"`
	Points      uint32                 `koanf:"points"`
	Selector    map[string]string      `koanf:"labelSelector"`
	SelectorAlt map[string]string      `koanf:"label_selector"`
	Spec        map[string]interface{} `koanf:"spec"`
}

func (rc rawCompetition) build() (*Competition, error) {
	if rc.Name == "" {
		return nil, fmt.Errorf("%w: competition name is required", ErrInvalidConfig)
	}
	if rc.Redis.Host == "" || rc.Redis.Port <= 0 || rc.Redis.Port > 65535 {
		return nil, fmt.Errorf("%w: competition %s: redis host/port are required", ErrInvalidConfig, rc.Name)
	}
	comp := &Competition{
		Name: rc.Name,
		Redis: RedisConfig{
			Host: rc.Redis.Host,
			Port: uint16(rc.Redis.Port),
			DB:   rc.Redis.DB,
		},
	}
	for _, t := range rc.Teams {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: competition %s: team name is required", ErrInvalidConfig, rc.Name)
		}
		comp.Teams = append(comp.Teams, Team{Name: t.Name})
	}
	for _, b := range rc.Boxes {
		if b.Name == "" || b.Hostname == "" {
			return nil, fmt.Errorf("%w: competition %s: box name and hostname are required", ErrInvalidConfig, rc.Name)
		}
		labels, err := asStringSlice(b.Labels)
		if err != nil {
			return nil, fmt.Errorf("%w: box %s: labels: %v", ErrInvalidConfig, b.Name, err)
		}
		comp.Boxes = append(comp.Boxes, BoxDef{
			Name:     b.Name,
			Labels:   labels,
			Hostname: b.Hostname,
			Cores:    b.Cores,
			RAMMB:    b.RAMMB,
		})
	}
	for _, c := range rc.Checks {
		check, err := c.build(rc.Name)
		if err != nil {
			return nil, err
		}
		comp.Checks = append(comp.Checks, *check)
	}
	return comp, nil
}

func (c rawCheck) build(compName string) (*CheckDef, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("%w: competition %s: check name is required", ErrInvalidConfig, compName)
	}
	if c.Interval < 1 {
		return nil, fmt.Errorf("%w: check %s: interval must be >= 1s", ErrInvalidConfig, c.Name)
	}
	spec, err := decodeSpec(c.Spec)
	if err != nil {
		return nil, fmt.Errorf("%w: check %s: %v", ErrInvalidConfig, c.Name, err)
	}
	return &CheckDef{
		Name:            c.Name,
		IntervalSeconds: c.Interval,
		Points:          c.Points,
		Selector:        buildSelector(c.Selector, c.SelectorAlt),
		Spec:            spec,
	}, nil
}

// buildSelector folds the two accepted YAML spellings into one required
// label set. Keys are ignored; empty values are not requirements, so both
// {} and {"": ""} match every box.
func buildSelector(primary, alt map[string]string) LabelSelector {
	m := primary
	if m == nil {
		m = alt
	}
	var sel LabelSelector
	for _, v := range m {
		if v != "" {
			sel = append(sel, v)
		}
	}
	sort.Strings(sel)
	return sel
}

func decodeSpec(m map[string]interface{}) (ProbeSpec, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("spec is required")
	}
	typ, err := asString(m["type"])
	if err != nil || typ == "" {
		return nil, fmt.Errorf("spec.type is required")
	}
	switch typ {
	case FamilyHTTP:
		return decodeHTTPSpec(m)
	case FamilyICMP:
		return decodeICMPSpec(m)
	case FamilySSH:
		return decodeSSHSpec(m)
	case FamilyShell:
		return decodeShellSpec(m)
	default:
		return nil, fmt.Errorf("unknown spec type %q", typ)
	}
}

func decodeHTTPSpec(m map[string]interface{}) (ProbeSpec, error) {
	s := HTTPSpec{Method: MethodGet}
	var err error
	if s.URL, err = asString(m["url"]); err != nil || s.URL == "" {
		return nil, fmt.Errorf("http spec: url is required")
	}
	if s.Code, err = asInt(m["code"]); err != nil {
		return nil, fmt.Errorf("http spec: code: %v", err)
	}
	if s.Code < 100 || s.Code > 599 {
		return nil, fmt.Errorf("http spec: code %d out of range", s.Code)
	}
	if v, ok := m["regex"]; ok {
		if s.Regex, err = asString(v); err != nil {
			return nil, fmt.Errorf("http spec: regex: %v", err)
		}
		// Placeholders substitute to literals, so strip them before the
		// compile sanity check.
		probe := strings.NewReplacer(
			"{{ team_name }}", "x", "{{team_name}}", "x",
			"{{ box_name }}", "x", "{{box_name}}", "x",
			"{{ ip }}", "x", "{{ip}}", "x",
		).Replace(s.Regex)
		if _, err := regexp.Compile(probe); err != nil {
			return nil, fmt.Errorf("http spec: regex: %v", err)
		}
	}
	if v, ok := m["method"]; ok {
		method, err := asString(v)
		if err != nil {
			return nil, fmt.Errorf("http spec: method: %v", err)
		}
		method = strings.ToLower(method)
		if method != MethodGet && method != MethodPost {
			return nil, fmt.Errorf("http spec: method %q not supported", method)
		}
		s.Method = method
	}
	if v, ok := m["forms"]; ok {
		if s.Forms, err = asString(v); err != nil {
			return nil, fmt.Errorf("http spec: forms: %v", err)
		}
	}
	if s.TimeoutSeconds, err = optionalSeconds(m); err != nil {
		return nil, fmt.Errorf("http spec: %v", err)
	}
	return s, nil
}

func decodeICMPSpec(m map[string]interface{}) (ProbeSpec, error) {
	s := ICMPSpec{}
	var err error
	if s.Code, err = asInt(m["code"]); err != nil {
		return nil, fmt.Errorf("icmp spec: code: %v", err)
	}
	if s.Code < 0 || s.Code > 255 {
		return nil, fmt.Errorf("icmp spec: code %d out of range", s.Code)
	}
	if s.TimeoutSeconds, err = optionalSeconds(m); err != nil {
		return nil, fmt.Errorf("icmp spec: %v", err)
	}
	return s, nil
}

func decodeSSHSpec(m map[string]interface{}) (ProbeSpec, error) {
	s := SSHSpec{Port: 22}
	var err error
	if v, ok := m["port"]; ok {
		if s.Port, err = asInt(v); err != nil {
			return nil, fmt.Errorf("ssh spec: port: %v", err)
		}
		if s.Port < 1 || s.Port > 65535 {
			return nil, fmt.Errorf("ssh spec: port %d out of range", s.Port)
		}
	}
	if s.Username, err = asString(m["username"]); err != nil || s.Username == "" {
		return nil, fmt.Errorf("ssh spec: username is required")
	}
	if v, ok := m["password"]; ok {
		if s.Password, err = asString(v); err != nil {
			return nil, fmt.Errorf("ssh spec: password: %v", err)
		}
	}
	if v, ok := m["private_key"]; ok {
		if s.PrivateKey, err = asString(v); err != nil {
			return nil, fmt.Errorf("ssh spec: private_key: %v", err)
		}
	}
	if s.TimeoutSeconds, err = optionalSeconds(m); err != nil {
		return nil, fmt.Errorf("ssh spec: %v", err)
	}
	return s, nil
}

func decodeShellSpec(m map[string]interface{}) (ProbeSpec, error) {
	s := ShellSpec{}
	var err error
	if s.Script, err = asString(m["script"]); err != nil || s.Script == "" {
		return nil, fmt.Errorf("nix spec: script is required")
	}
	if v, ok := m["packages"]; ok {
		if s.Packages, err = asStringSlice(v); err != nil {
			return nil, fmt.Errorf("nix spec: packages: %v", err)
		}
	}
	if s.TimeoutSeconds, err = optionalSeconds(m); err != nil {
		return nil, fmt.Errorf("nix spec: %v", err)
	}
	return s, nil
}

func optionalSeconds(m map[string]interface{}) (int64, error) {
	v, ok := m["timeout"]
	if !ok {
		return 0, nil
	}
	n, err := asInt(v)
	if err != nil {
		return 0, fmt.Errorf("timeout: %v", err)
	}
	if n < 1 {
		return 0, fmt.Errorf("timeout must be >= 1s")
	}
	return int64(n), nil
}

// YAML scalars surface as assorted Go types; these coercions keep the
// decoders flat.

func asString(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func asInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asStringSlice(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return []string{t}, nil
	case []string:
		return t, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, err := asString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list of strings, got %T", v)
	}
}
