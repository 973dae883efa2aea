package vectorutils

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/papercomputeco/memd/pkg/vector"
	"github.com/papercomputeco/memd/pkg/vector/inmemory"
	"github.com/papercomputeco/memd/pkg/vector/qdrant"
	"github.com/papercomputeco/memd/pkg/vector/sqlitevec"
)

// NewVectorDriverOpts selects and configures a vector driver.
type NewVectorDriverOpts struct {
	ProviderType string
	Target       string
	Collection   string
	Dimensions   uint
	Logger       *zap.Logger
}

// NewVectorDriver builds the configured vector driver.
func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "qdrant":
		host, port, err := splitHostPort(o.Target)
		if err != nil {
			return nil, fmt.Errorf("parsing qdrant target: %w", err)
		}
		return qdrant.NewDriver(ctx, qdrant.Config{
			Host:           host,
			Port:           port,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	case "sqlitevec":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "inmemory":
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

// splitHostPort parses "host:port" or a URL-ish target into host and port,
// defaulting to Qdrant's gRPC port 6334.
func splitHostPort(target string) (string, int, error) {
	if target == "" {
		return "", 0, fmt.Errorf("target is required")
	}

	u, err := url.Parse("//" + target)
	if err != nil {
		return "", 0, err
	}

	host := u.Hostname()
	if host == "" {
		host = target
	}

	port := 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, err
		}
	}
	return host, port, nil
}
