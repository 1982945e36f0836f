package heartbeat

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// MojangClient implements Client against the original classic.minecraft.net
// heartbeat.jsp endpoint, which has no delete operation: a server
// simply stops beating and the directory entry expires.
type MojangClient struct {
	log  *logrus.Logger
	http *retryablehttp.Client
	url  string
	port int
	salt string

	query url.Values
}

// NewMojangClient builds a client targeting directoryURL, using salt
// (the same 16-character online-mode salt from §4.3) in its query.
func NewMojangClient(log *logrus.Logger, directoryURL string, port int, salt string) *MojangClient {
	return &MojangClient{
		log:  log,
		http: newRetryableClient(log),
		url:  directoryURL,
		port: port,
		salt: salt,
	}
}

// Build assembles the query string heartbeat.jsp expects.
func (c *MojangClient) Build(status Status) {
	v := url.Values{}
	v.Set("port", strconv.Itoa(status.Port))
	v.Set("max", strconv.Itoa(status.MaxPlayers))
	v.Set("name", status.Name)
	v.Set("public", strconv.FormatBool(status.Public))
	v.Set("version", "7")
	v.Set("salt", c.salt)
	v.Set("users", strconv.Itoa(status.Players))
	c.query = v
}

// Beat GETs the heartbeat endpoint, retrying per §4.5.
func (c *MojangClient) Beat() error {
	req, err := retryablehttp.NewRequest(http.MethodGet, c.url+"?"+c.query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("heartbeat: mojang: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat: mojang: beat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat: mojang: status %d", resp.StatusCode)
	}
	c.log.Debug("mojang heartbeat sent")
	return nil
}

// Delete is a no-op: the classic.minecraft.net directory has no
// deregistration call, entries simply expire.
func (c *MojangClient) Delete() error { return nil }
