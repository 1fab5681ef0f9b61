package asyncmaria

import "time"

// options holds configuration resolved once at New/Connect time and
// persisted across Reset.
type options struct {
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	compress       bool
	multiStatements bool
	charset        string
	initCommand    string
	sslKey         string
	sslCert        string
	sslCA          string
	sslCipher      string
	sslVerifyPeer  bool
	logger         Logger
	metrics        *metrics
}

// Option configures a Client. See WithXxx constructors below.
type Option interface {
	apply(*options) error
}

type optionFunc func(*options) error

func (f optionFunc) apply(o *options) error { return f(o) }

// WithConnectTimeout sets the connector's connect timeout.
func WithConnectTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) error { o.connectTimeout = d; return nil })
}

// WithReadTimeout sets the connector's read timeout.
func WithReadTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) error { o.readTimeout = d; return nil })
}

// WithWriteTimeout sets the connector's write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) error { o.writeTimeout = d; return nil })
}

// WithCompression enables wire compression.
func WithCompression(enabled bool) Option {
	return optionFunc(func(o *options) error { o.compress = enabled; return nil })
}

// WithMultiStatements permits ';'-separated queries and multiple result
// sets per query.
func WithMultiStatements(enabled bool) Option {
	return optionFunc(func(o *options) error { o.multiStatements = enabled; return nil })
}

// WithCharset sets the connection character set name.
func WithCharset(name string) Option {
	return optionFunc(func(o *options) error { o.charset = name; return nil })
}

// WithInitCommand sets a SQL statement run automatically after connect.
func WithInitCommand(sql string) Option {
	return optionFunc(func(o *options) error { o.initCommand = sql; return nil })
}

// WithTLS sets the client key/cert/CA file paths and cipher list.
func WithTLS(key, cert, ca, cipher string) Option {
	return optionFunc(func(o *options) error {
		o.sslKey, o.sslCert, o.sslCA, o.sslCipher = key, cert, ca, cipher
		return nil
	})
}

// WithVerifyServerCert toggles server certificate verification.
func WithVerifyServerCert(enabled bool) Option {
	return optionFunc(func(o *options) error { o.sslVerifyPeer = enabled; return nil })
}

// WithLogger installs a Logger. The default is a no-op discard logger.
func WithLogger(l Logger) Option {
	return optionFunc(func(o *options) error {
		if l == nil {
			l = discardLogger{}
		}
		o.logger = l
		return nil
	})
}

// WithMetrics enables Prometheus metrics registered against reg.
func WithMetrics(reg prometheusRegisterer) Option {
	return optionFunc(func(o *options) error {
		m, err := newMetrics(reg)
		if err != nil {
			return err
		}
		o.metrics = m
		return nil
	})
}

// resolveOptions applies opts over a zero-value options struct with
// defaults filled in, matching eventloop.resolveLoopOptions's
// resolve-then-apply shape.
func resolveOptions(opts []Option) (*options, error) {
	o := &options{
		logger: discardLogger{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
