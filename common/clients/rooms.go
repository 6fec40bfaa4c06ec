package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/HuongNV13/moodle/common/models"
)

// RoomsClient applies room mutations against the external communication
// service. The sync drain task dispatches queue entries through it.
type RoomsClient struct {
	baseURL string
	http    *HTTPClient
	logger  Logger
}

// NewRoomsClient creates a new rooms client
func NewRoomsClient(baseURL string, httpClient *HTTPClient, logger Logger) *RoomsClient {
	return &RoomsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

type createRoomResponse struct {
	RoomID string `json:"roomid"`
}

// CreateRoom creates the room remotely and returns its external id
func (c *RoomsClient) CreateRoom(ctx context.Context, room *models.Room) (string, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/v1/rooms", room.Config)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}

	var body createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("create room: decode response: %w", err)
	}

	c.logger.Info("room created", "room_id", body.RoomID)
	return body.RoomID, nil
}

// UpdateRoom pushes the current room config to the external service
func (c *RoomsClient) UpdateRoom(ctx context.Context, room *models.Room) error {
	url := fmt.Sprintf("%s/api/v1/rooms/%s", c.baseURL, room.ExternalID)
	resp, err := c.doJSON(ctx, http.MethodPatch, url, room.Config)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("update room %s: %w", room.ExternalID, err)
	}
	return nil
}

// AddMembers adds users to the room
func (c *RoomsClient) AddMembers(ctx context.Context, room *models.Room, userIDs []int64) error {
	return c.memberRequest(ctx, http.MethodPost, room, userIDs, "add members")
}

// UpdateMemberships refreshes power levels / permissions for users
func (c *RoomsClient) UpdateMemberships(ctx context.Context, room *models.Room, userIDs []int64) error {
	return c.memberRequest(ctx, http.MethodPut, room, userIDs, "update memberships")
}

// RemoveMembers removes users from the room
func (c *RoomsClient) RemoveMembers(ctx context.Context, room *models.Room, userIDs []int64) error {
	return c.memberRequest(ctx, http.MethodDelete, room, userIDs, "remove members")
}

// DeleteRoom deletes the room remotely
func (c *RoomsClient) DeleteRoom(ctx context.Context, room *models.Room) error {
	url := fmt.Sprintf("%s/api/v1/rooms/%s", c.baseURL, room.ExternalID)
	resp, err := c.http.DoRequest(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("delete room %s: %w", room.ExternalID, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("delete room %s: %w", room.ExternalID, err)
	}
	return nil
}

func (c *RoomsClient) memberRequest(ctx context.Context, method string, room *models.Room, userIDs []int64, op string) error {
	payload, err := json.Marshal(models.SyncUserData{UserIDs: userIDs})
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", op, err)
	}

	url := fmt.Sprintf("%s/api/v1/rooms/%s/members", c.baseURL, room.ExternalID)
	resp, err := c.doJSON(ctx, method, url, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("%s for room %s: %w", op, room.ExternalID, err)
	}
	return nil
}

func (c *RoomsClient) doJSON(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.http.Do(req)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}
