// Package twitter posts tweets and listens for mentions through the X API.
// Tweet creation goes through the v2 endpoint, media upload through the
// legacy v1.1 upload host, and mention listening through the v2 filtered
// stream.
package twitter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultAPIBaseURL    = "https://api.twitter.com"
	defaultUploadBaseURL = "https://upload.twitter.com"

	// MaxTweetLength is the hard per-tweet limit enforced by the service.
	MaxTweetLength = 280
)

// Credentials holds the app and user tokens for both auth schemes: OAuth 1.0a
// user context for posting and the app bearer token for the filtered stream.
type Credentials struct {
	ConsumerKey       string `env:"TWITTER_API_KEY"`
	ConsumerSecret    string `env:"TWITTER_API_KEY_SECRET"`
	AccessToken       string `env:"TWITTER_ACCESS_TOKEN"`
	AccessTokenSecret string `env:"TWITTER_ACCESS_TOKEN_SECRET"`
	BearerToken       string `env:"TWITTER_BEARER_TOKEN"`
}

// Complete reports whether the user-context tokens needed for posting are all
// present. The bearer token is only needed for streaming.
func (c Credentials) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessTokenSecret != ""
}

type PostResult struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	MediaID   string    `json:"media_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
}

// PostOutcome carries the result of an asynchronous post.
type PostOutcome struct {
	Result PostResult
	Err    error
}

type Mention struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	AuthorID string `json:"author_id"`
}

type Client struct {
	creds  Credentials
	signer *oauth1Signer

	client       *resty.Client
	uploadClient *resty.Client

	apiBaseURL    string
	uploadBaseURL string
}

func NewClient(creds Credentials) *Client {
	if !creds.Complete() {
		slog.Warn("twitter credentials incomplete, posting will fail")
	}

	c := &Client{
		creds:         creds,
		signer:        newOAuth1Signer(creds.ConsumerKey, creds.ConsumerSecret, creds.AccessToken, creds.AccessTokenSecret),
		apiBaseURL:    defaultAPIBaseURL,
		uploadBaseURL: defaultUploadBaseURL,
	}
	c.client = resty.New().SetBaseURL(c.apiBaseURL).SetTimeout(30 * time.Second)
	c.uploadClient = resty.New().SetBaseURL(c.uploadBaseURL).SetTimeout(2 * time.Minute)
	return c
}

// TruncateTweet shortens text to the service limit, replacing the tail with an
// ellipsis when it would not fit.
func TruncateTweet(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxTweetLength {
		return text
	}
	slog.Warn("tweet text exceeds limit, truncating", "length", len(runes))
	return string(runes[:MaxTweetLength-3]) + "..."
}

type createTweetRequest struct {
	Text  string            `json:"text"`
	Media *createTweetMedia `json:"media,omitempty"`
}

type createTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// PostTweet posts a text-only tweet, truncating over-limit text first.
func (c *Client) PostTweet(ctx context.Context, text string) (PostResult, error) {
	return c.createTweet(ctx, TruncateTweet(text), "")
}

// PostTweetWithMedia uploads the file at mediaPath and posts a tweet
// referencing it.
func (c *Client) PostTweetWithMedia(ctx context.Context, text, mediaPath string) (PostResult, error) {
	mediaID, err := c.UploadMedia(ctx, mediaPath)
	if err != nil {
		return PostResult{}, err
	}

	result, err := c.createTweet(ctx, TruncateTweet(text), mediaID)
	if err != nil {
		return PostResult{}, err
	}
	result.MediaID = mediaID
	return result, nil
}

// PostTweetAsync posts in a background goroutine and delivers the outcome on
// the returned channel.
func (c *Client) PostTweetAsync(ctx context.Context, text string) <-chan PostOutcome {
	out := make(chan PostOutcome, 1)
	go func() {
		result, err := c.PostTweet(ctx, text)
		out <- PostOutcome{Result: result, Err: err}
		close(out)
	}()
	return out
}

// PostTweetWithMediaAsync is the asynchronous variant of PostTweetWithMedia.
func (c *Client) PostTweetWithMediaAsync(ctx context.Context, text, mediaPath string) <-chan PostOutcome {
	out := make(chan PostOutcome, 1)
	go func() {
		result, err := c.PostTweetWithMedia(ctx, text, mediaPath)
		out <- PostOutcome{Result: result, Err: err}
		close(out)
	}()
	return out
}

func (c *Client) createTweet(ctx context.Context, text, mediaID string) (PostResult, error) {
	body := createTweetRequest{Text: text}
	if mediaID != "" {
		body.Media = &createTweetMedia{MediaIDs: []string{mediaID}}
	}

	var resp createTweetResponse
	res, err := c.signedRequest(ctx, c.client, "POST", "/2/tweets").
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&resp).
		Send()
	if err := checkResponse(res, err, "create tweet"); err != nil {
		return PostResult{}, err
	}

	slog.Info("tweet posted", "tweet_id", resp.Data.ID)
	return PostResult{
		ID:        resp.Data.ID,
		Text:      resp.Data.Text,
		CreatedAt: time.Now().UTC(),
		URL:       TweetURL(resp.Data.ID),
	}, nil
}

// TweetURL returns the canonical link for a posted tweet.
func TweetURL(id string) string {
	return fmt.Sprintf("https://twitter.com/user/status/%s", id)
}

type mediaUploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

// UploadMedia pushes a local file through the v1.1 media upload endpoint and
// returns the media id to attach to a tweet.
func (c *Client) UploadMedia(ctx context.Context, mediaPath string) (string, error) {
	var resp mediaUploadResponse
	res, err := c.signedRequest(ctx, c.uploadClient, "POST", "/1.1/media/upload.json").
		SetFile("media", mediaPath).
		SetResult(&resp).
		Send()
	if err := checkResponse(res, err, "media upload"); err != nil {
		return "", err
	}

	if resp.MediaIDString == "" {
		return "", fmt.Errorf("media upload returned no media id for %s", filepath.Base(mediaPath))
	}

	slog.Info("media uploaded", "media_id", resp.MediaIDString)
	return resp.MediaIDString, nil
}

type userResponse struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

// AuthenticatedUser returns the id and username of the account the
// user-context tokens belong to.
func (c *Client) AuthenticatedUser(ctx context.Context) (id, username string, err error) {
	var resp userResponse
	res, err := c.signedRequest(ctx, c.client, "GET", "/2/users/me").
		SetResult(&resp).
		Send()
	if err := checkResponse(res, err, "verify credentials"); err != nil {
		return "", "", err
	}
	return resp.Data.ID, resp.Data.Username, nil
}

type mentionsResponse struct {
	Data []Mention `json:"data"`
}

// GetMentions returns recent mentions of the authenticated user, newest first.
// A non-empty sinceID restricts results to tweets after it.
func (c *Client) GetMentions(ctx context.Context, sinceID string, count int) ([]Mention, error) {
	userID, _, err := c.AuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}

	// Query params go into the path before signing so they are covered by
	// the signature.
	params := url.Values{}
	if sinceID != "" {
		params.Set("since_id", sinceID)
	}
	if count > 0 {
		params.Set("max_results", strconv.Itoa(count))
	}
	path := fmt.Sprintf("/2/users/%s/mentions", userID)
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp mentionsResponse
	res, err := c.signedRequest(ctx, c.client, "GET", path).SetResult(&resp).Send()
	if err := checkResponse(res, err, "get mentions"); err != nil {
		return nil, err
	}

	slog.Info("retrieved mentions", "count", len(resp.Data))
	return resp.Data, nil
}

type streamRuleRequest struct {
	Add []streamRule `json:"add"`
}

type streamRule struct {
	Value string `json:"value"`
	Tag   string `json:"tag"`
}

// ListenMentions registers a filtered-stream rule matching mentions of the
// authenticated user and invokes callback for every matching tweet until ctx
// is cancelled or the stream ends. Setup errors propagate; errors on
// individual stream items are logged and skipped.
func (c *Client) ListenMentions(ctx context.Context, callback func(Mention)) error {
	if c.creds.BearerToken == "" {
		return fmt.Errorf("mention stream requires a bearer token")
	}

	_, username, err := c.AuthenticatedUser(ctx)
	if err != nil {
		return err
	}

	rules := streamRuleRequest{Add: []streamRule{{Value: "@" + username, Tag: "mentions"}}}
	res, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.creds.BearerToken).
		SetHeader("Content-Type", "application/json").
		SetBody(rules).
		Post("/2/tweets/search/stream/rules")
	if err := checkResponse(res, err, "add stream rule"); err != nil {
		return err
	}

	res, err = c.client.R().
		SetContext(ctx).
		SetAuthToken(c.creds.BearerToken).
		SetDoNotParseResponse(true).
		Get("/2/tweets/search/stream")
	if err != nil {
		return fmt.Errorf("error connecting to mention stream: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() >= 400 {
		return fmt.Errorf("mention stream returned status %d", res.StatusCode())
	}

	slog.Info("mention stream connected", "username", username)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			// Keep-alive newline.
			continue
		}

		var item struct {
			Data Mention `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			slog.Error("error decoding stream item", "error", err)
			continue
		}
		callback(item.Data)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mention stream ended with error: %w", err)
	}
	return nil
}

// signedRequest prepares a request carrying an OAuth 1.0a signature for its
// method and URL, query string included.
func (c *Client) signedRequest(ctx context.Context, client *resty.Client, method, path string) *resty.Request {
	req := client.R().SetContext(ctx)
	req.Method = method
	req.URL = path

	header, err := c.signer.AuthorizationHeader(method, strings.TrimRight(client.BaseURL, "/")+path)
	if err == nil {
		req.SetHeader("Authorization", header)
	} else {
		slog.Error("error signing request", "error", err)
	}
	return req
}

func checkResponse(res *resty.Response, err error, action string) error {
	if err != nil {
		return fmt.Errorf("error during %s: %w", action, err)
	}
	if res.IsError() {
		return fmt.Errorf("%s returned status %d: %s", action, res.StatusCode(), strings.TrimSpace(res.String()))
	}
	return nil
}
