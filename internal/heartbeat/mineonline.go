package heartbeat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// MineOnlineClient implements Client against the MineOnline directory,
// which returns a server uuid on the first successful beat that every
// subsequent beat/delete call must carry.
type MineOnlineClient struct {
	log    *logrus.Logger
	http   *retryablehttp.Client
	url    string
	port   int
	ip     string

	uuid string
	body url.Values
}

// NewMineOnlineClient builds a client targeting directoryURL.
func NewMineOnlineClient(log *logrus.Logger, directoryURL, ip string, port int) *MineOnlineClient {
	return &MineOnlineClient{
		log:  log,
		http: newRetryableClient(log),
		url:  directoryURL,
		ip:   ip,
		port: port,
	}
}

// Build assembles the form body MineOnline expects: server identity,
// player counts, and the roster of names (MineOnline-specific).
func (c *MineOnlineClient) Build(status Status) {
	names, _ := json.Marshal(status.Names)
	v := url.Values{}
	v.Set("name", status.Name)
	v.Set("motd", status.MOTD)
	v.Set("ip", c.ip)
	v.Set("port", strconv.Itoa(status.Port))
	v.Set("players", strconv.Itoa(status.Players))
	v.Set("max", strconv.Itoa(status.MaxPlayers))
	v.Set("public", strconv.FormatBool(status.Public))
	v.Set("playerNames", string(names))
	if c.uuid != "" {
		v.Set("uuid", c.uuid)
	}
	c.body = v
}

// Beat POSTs the built form body, retrying per §4.5, and captures the
// uuid field from the JSON response for subsequent calls.
func (c *MineOnlineClient) Beat() error {
	req, err := retryablehttp.NewRequest(http.MethodPost, c.url, bytes.NewBufferString(c.body.Encode()))
	if err != nil {
		return fmt.Errorf("heartbeat: mineonline: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat: mineonline: beat: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("heartbeat: mineonline: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat: mineonline: status %d", resp.StatusCode)
	}

	var parsed struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.UUID != "" {
		c.uuid = parsed.UUID
	}

	c.log.WithField("uuid", c.uuid).Debug("mineonline heartbeat sent")
	return nil
}

// Delete removes the server entry, if a uuid has been captured.
func (c *MineOnlineClient) Delete() error {
	if c.uuid == "" {
		return nil
	}
	req, err := retryablehttp.NewRequest(http.MethodDelete, c.url+"?uuid="+url.QueryEscape(c.uuid), nil)
	if err != nil {
		return fmt.Errorf("heartbeat: mineonline: build delete: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat: mineonline: delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("heartbeat: mineonline: delete status %d", resp.StatusCode)
	}
	return nil
}
