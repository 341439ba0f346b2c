package datasource

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"github.com/ekaya-inc/nodepool/pkg/apperrors"
)

// TargetScheme prefixes every assembled target string.
const TargetScheme = "postgres://"

// Grammar pieces. Octets are checked for digit count only (999.1.1.1 is accepted),
// and so is the port (1-5 digits). Both are kept permissive on purpose; see DESIGN.md.
const (
	nodeIDPattern   = `([0-9]{1,3}\.){3}[0-9]{1,3}:[0-9]{1,5}`
	baseNamePattern = `[a-zA-Z][a-zA-Z0-9_]*`
)

var (
	nodeIDRegex   = regexp.MustCompile(`^` + nodeIDPattern + `$`)
	baseNameRegex = regexp.MustCompile(`^` + baseNamePattern + `$`)
	targetRegex   = regexp.MustCompile(`^` + regexp.QuoteMeta(TargetScheme) + nodeIDPattern + `/` + baseNamePattern + `$`)
)

// ValidationError reports an assembled target string that does not match the grammar.
type ValidationError struct {
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("target string is not correct: %q, check node host, port and base name", e.Value)
}

// Is makes errors.Is(err, apperrors.ErrConfig) hold for validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == apperrors.ErrConfig
}

// BuildTarget assembles postgres://<host>:<port>/<baseName> and validates the
// whole assembled string against one grammar.
func BuildTarget(host string, port int, baseName string) (string, error) {
	target := TargetScheme + host + ":" + strconv.Itoa(port) + "/" + baseName
	if err := ValidateTarget(target); err != nil {
		return "", err
	}
	return target, nil
}

// ValidateTarget checks a target string produced elsewhere with the same grammar
// BuildTarget uses.
func ValidateTarget(target string) error {
	if !targetRegex.MatchString(target) {
		return &ValidationError{Value: target}
	}
	return nil
}

// IsNodeID reports whether s has the host:port shape of a node identity.
func IsNodeID(s string) bool {
	return nodeIDRegex.MatchString(s)
}

// IsBaseName reports whether s is an acceptable base name.
func IsBaseName(s string) bool {
	return baseNameRegex.MatchString(s)
}

// ConnectionTarget is an immutable, validated address of one database on one node.
type ConnectionTarget struct {
	host     string
	port     int
	baseName string
	url      string
}

// NewConnectionTarget validates the components and returns the target.
// Errors match apperrors.ErrConfig.
func NewConnectionTarget(host string, port int, baseName string) (ConnectionTarget, error) {
	target, err := BuildTarget(host, port, baseName)
	if err != nil {
		return ConnectionTarget{}, err
	}
	return ConnectionTarget{
		host:     host,
		port:     port,
		baseName: baseName,
		url:      target,
	}, nil
}

func (t ConnectionTarget) Host() string     { return t.host }
func (t ConnectionTarget) Port() int        { return t.port }
func (t ConnectionTarget) BaseName() string { return t.baseName }

// URL returns the assembled target string.
func (t ConnectionTarget) URL() string { return t.url }

// NodeID returns host:port, the identity of the physical node regardless of base name.
func (t ConnectionTarget) NodeID() string {
	return t.host + ":" + strconv.Itoa(t.port)
}

// IsZero reports whether t was never built.
func (t ConnectionTarget) IsZero() bool { return t.url == "" }

// ConnString returns the target with credentials and sslmode attached, in the
// URL form understood by pgx and the pgx database/sql driver.
// IMPORTANT: credentials are URL-escaped by net/url; the result must be sanitized before logging.
func (t ConnectionTarget) ConnString(creds Credentials, sslMode string) string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   t.NodeID(),
		Path:   "/" + t.baseName,
	}
	if creds.Username != "" {
		u.User = url.UserPassword(creds.Username, creds.Password)
	}
	if sslMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{sslMode}}.Encode()
	}
	return u.String()
}
