package dag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	latestSnapshotAPI = "global-snapshots/latest"
)

// Snapshot is the validation network's latest globally ordered snapshot as reported by one node.
type Snapshot struct {
	Ordinal          uint64
	LastSnapshotHash string
}

// Client reads snapshots from a DAG L0 node and produces validation commitments.
type Client struct {
	logger      *zap.Logger
	httpClient  *http.Client
	baseURL     string
	explorerURL string
	network     string
	timeout     time.Duration
	now         func() time.Time
}

func NewClient(logger *zap.Logger, baseURL, explorerURL, network string, timeout time.Duration) Client {
	return Client{
		logger:      logger,
		httpClient:  &http.Client{},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		explorerURL: strings.TrimSuffix(explorerURL, "/"),
		network:     network,
		timeout:     timeout,
		now:         time.Now,
	}
}

// GetSnapshot queries the current snapshot ordinal and hash.
func (c Client) GetSnapshot(ctx context.Context) (Snapshot, error) {
	response, err := c.sendRequest(ctx, latestSnapshotAPI)
	if err != nil {
		return Snapshot{}, err
	}

	// the node answers JSON, which the yaml decoder reads as well
	var decoded struct {
		Value struct {
			Ordinal          uint64 `yaml:"ordinal"`
			LastSnapshotHash string `yaml:"lastSnapshotHash"`
		} `yaml:"value"`
	}
	if err := yaml.Unmarshal(response, &decoded); err != nil {
		return Snapshot{}, errors.New("failed to decode the snapshot response: " + err.Error())
	}

	if decoded.Value.LastSnapshotHash == "" {
		return Snapshot{}, errors.New("snapshot response carries no snapshot hash")
	}

	return Snapshot{
		Ordinal:          decoded.Value.Ordinal,
		LastSnapshotHash: decoded.Value.LastSnapshotHash,
	}, nil
}

// NetworkAvailable reports whether a snapshot can currently be read.
func (c Client) NetworkAvailable(ctx context.Context) bool {
	_, err := c.GetSnapshot(ctx)
	return err == nil
}

func (c Client) ExplorerURL(ordinal uint64) string {
	return c.explorerURL + "/snapshots/" + strconv.FormatUint(ordinal, 10)
}

func (c Client) sendRequest(ctx context.Context, apiSuffix string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s", c.baseURL, apiSuffix)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, errors.New("failed to connect to the validation network: " + err.Error())
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		c.logger.Debug("validation network responded with 404", zap.String("url", url))
		return nil, errors.New("responded with status 404")
	} else if response.StatusCode >= 400 {
		return nil, fmt.Errorf("error %d: %s", response.StatusCode, response.Status)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, errors.New("error reading response: " + err.Error())
	}

	return body, nil
}
