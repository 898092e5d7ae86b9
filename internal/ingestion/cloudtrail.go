// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
)

const (
	cloudTrailIndex     = "cloudtrail"
	cloudTrailLoginName = "ConsoleLogin"
	cloudTrailFetchers  = 4
)

// s3API is the part of the S3 client the adapter uses.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// CloudTrail reads ConsoleLogin events from the gzipped JSON log files
// CloudTrail delivers to S3. A window is downloaded once and served to
// ProcessUsers and every following ProcessUserLogins call from memory.
type CloudTrail struct {
	*Normalizer
	client  s3API
	cfg     config.SourceConfig
	breaker *breaker

	mu     sync.Mutex
	window *trailWindow
}

type trailWindow struct {
	start, end time.Time
	users      []string
	byUser     map[string][]Raw
}

// NewCloudTrail loads the AWS configuration from the default chain. When
// username and password are set they are used as a static access key;
// url overrides the S3 endpoint for S3-compatible stores.
func NewCloudTrail(ctx context.Context, cfg config.SourceConfig) (*CloudTrail, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Username != "" && cfg.Password != "" {
		creds := aws.Credentials{AccessKeyID: cfg.Username, SecretAccessKey: cfg.Password, Source: "buffalogs"}
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) { return creds, nil })))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.URL != "" {
			o.BaseEndpoint = aws.String(cfg.URL)
			o.UsePathStyle = true
		}
	})
	return newCloudTrail(client, cfg), nil
}

func newCloudTrail(client s3API, cfg config.SourceConfig) *CloudTrail {
	return &CloudTrail{
		Normalizer: NewNormalizer(config.SourceCloudTrail, cfg.Mapping),
		client:     client,
		cfg:        cfg,
		breaker:    newBreaker(config.SourceCloudTrail),
	}
}

// Name implements Source.
func (c *CloudTrail) Name() string { return config.SourceCloudTrail }

// ProcessUsers implements Source.
func (c *CloudTrail) ProcessUsers(ctx context.Context, start, end time.Time) ([]string, error) {
	w, err := c.load(ctx, "users", start, end)
	if err != nil {
		return nil, err
	}
	logging.Info().Str("source", c.Name()).Int("users", len(w.users)).Msg("Successfully got users")
	return append([]string(nil), w.users...), nil
}

// ProcessUserLogins implements Source.
func (c *CloudTrail) ProcessUserLogins(ctx context.Context, start, end time.Time, username string) ([]Raw, error) {
	w, err := c.load(ctx, "logins", start, end)
	if err != nil {
		return nil, err
	}
	return w.byUser[strings.ToLower(username)], nil
}

func (c *CloudTrail) load(ctx context.Context, op string, start, end time.Time) (*trailWindow, error) {
	if err := checkWindow(start, end); err != nil {
		return nil, &IngestError{Source: c.Name(), Op: op, Err: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if w := c.window; w != nil && w.start.Equal(start) && w.end.Equal(end) {
		return w, nil
	}

	keys, err := call(c.breaker, c.Name(), "list", func() ([]string, error) {
		return c.listKeys(ctx, start)
	})
	if err != nil {
		return nil, err
	}

	files := make([][]Raw, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cloudTrailFetchers)
	for i, key := range keys {
		g.Go(func() error {
			recs, err := call(c.breaker, c.Name(), "get", func() ([]Raw, error) {
				return c.fetch(gctx, key, start, end)
			})
			files[i] = recs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	w := &trailWindow{start: start, end: end, byUser: make(map[string][]Raw)}
	for _, recs := range files {
		for _, r := range recs {
			name := strings.ToLower(toString(r["user.name"]))
			if name == "" {
				continue
			}
			if _, seen := w.byUser[name]; !seen {
				w.users = append(w.users, name)
			}
			w.byUser[name] = append(w.byUser[name], r)
		}
	}
	sort.Strings(w.users)
	for _, recs := range w.byUser {
		sort.SliceStable(recs, func(i, j int) bool {
			ti, tj := toString(recs[i]["@timestamp"]), toString(recs[j]["@timestamp"])
			if ti != tj {
				return ti < tj
			}
			return toString(recs[i]["_id"]) < toString(recs[j]["_id"])
		})
	}
	c.window = w
	return w, nil
}

// listKeys returns the .gz objects under the prefix. Objects last modified
// before start cannot hold events of the window and are skipped.
func (c *CloudTrail) listKeys(ctx context.Context, start time.Time) ([]string, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(c.cfg.BucketName)}
	if c.cfg.Prefix != "" {
		in.Prefix = aws.String(c.cfg.Prefix)
	}
	var keys []string
	p := s3.NewListObjectsV2Paginator(c.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, awsError(c.Name(), "list", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".gz") {
				continue
			}
			if obj.LastModified != nil && obj.LastModified.Before(start) {
				continue
			}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *CloudTrail) fetch(ctx context.Context, key string, start, end time.Time) ([]Raw, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, awsError(c.Name(), "get", err)
	}
	defer func() { _ = out.Body.Close() }()

	zr, err := gzip.NewReader(out.Body)
	if err != nil {
		return nil, payloadError(c.Name(), "get", fmt.Errorf("%s: %w", key, err))
	}
	defer func() { _ = zr.Close() }()

	var file struct {
		Records []map[string]any `json:"Records"`
	}
	if err := json.NewDecoder(zr).Decode(&file); err != nil {
		return nil, payloadError(c.Name(), "get", fmt.Errorf("%s: %w", key, err))
	}

	var recs []Raw
	for _, rec := range file.Records {
		if toString(rec["eventName"]) != cloudTrailLoginName {
			continue
		}
		ts, ok := toTime(rec["eventTime"])
		if !ok || ts.Before(start) || !ts.Before(end) {
			continue
		}
		recs = append(recs, flattenTrailRecord(rec, ts))
	}
	return recs, nil
}

// flattenTrailRecord reshapes a CloudTrail record into the flat ECS-style
// keys of the default mapping.
func flattenTrailRecord(rec map[string]any, ts time.Time) Raw {
	user := toString(dig(rec, "userIdentity", "userName"))
	if user == "" {
		user = toString(dig(rec, "userIdentity", "sessionContext", "sessionIssuer", "userName"))
	}
	if user == "" {
		user = toString(dig(rec, "userIdentity", "principalId"))
	}
	return Raw{
		"@timestamp":          ts.Format(time.RFC3339Nano),
		"user.name":           user,
		"source.ip":           toString(rec["sourceIPAddress"]),
		"user_agent.original": toString(rec["userAgent"]),
		"event.outcome":       strings.ToLower(toString(dig(rec, "responseElements", "ConsoleLogin"))),
		"_id":                 toString(rec["eventID"]),
		"_index":              cloudTrailIndex,
		"raw_event":           rec,
	}
}

func dig(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		next, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = next[k]
	}
	return cur
}

// awsError classifies an SDK error. HTTP responses keep their status code;
// anything else is treated as a transport failure.
func awsError(source, op string, err error) *IngestError {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		code := re.HTTPStatusCode()
		return &IngestError{Source: source, Op: op, Retryable: retryableStatus(code), StatusCode: code, Err: err}
	}
	return transportError(source, op, err)
}
