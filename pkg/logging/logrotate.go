package logging

import "fmt"

// RotateOptions tunes the generated logrotate stanza
type RotateOptions struct {
	Days  int
	User  string
	Group string
}

// DefaultRotateOptions keeps two weeks of logs owned by the edgecap user
func DefaultRotateOptions() RotateOptions {
	return RotateOptions{Days: 14, User: "edgecap", Group: "edgecap"}
}

// GenerateLogrotateConfig creates a logrotate configuration for a component
func GenerateLogrotateConfig(component string, opts RotateOptions) string {
	if opts.Days <= 0 {
		opts.Days = DefaultRotateOptions().Days
	}
	if opts.User == "" {
		opts.User = DefaultRotateOptions().User
	}
	if opts.Group == "" {
		opts.Group = opts.User
	}

	return fmt.Sprintf(`# Logrotate configuration for edgecap %[1]s
# Install: sudo cp this file to /etc/logrotate.d/edgecap-%[1]s

%[2]s/%[1]s/*.log {
    daily
    rotate %[3]d
    compress
    delaycompress
    missingok
    notifempty
    create 0644 %[4]s %[5]s
    copytruncate
}
`, component, BaseDir, opts.Days, opts.User, opts.Group)
}
