package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"github.com/HuongNV13/moodle/common/models"
)

const (
	// APICreateResourceURI is the MoodleNet resource creation endpoint
	APICreateResourceURI = "/.pkg/@moodlenet/ed-resource/basic/v1/create"

	// APIScopeCreateResource is the OAuth 2 scope required to create a
	// draft resource. Scopes are capability specific and passed through to
	// the authorization endpoint unmodified.
	APIScopeCreateResource = "@moodlenet/ed-resource:write.drafts"
)

// UploadOutcome tags the result of an upload attempt
type UploadOutcome int

const (
	// OutcomeCreated means the remote service accepted the resource (201)
	OutcomeCreated UploadOutcome = iota
	// OutcomeRejected means the remote service answered with a non-201 status
	OutcomeRejected
	// OutcomeTransportFailure means the request never produced an HTTP
	// response (network failure, timeout). Distinct from an explicit
	// rejection so the caller can classify it as retryable.
	OutcomeTransportFailure
)

// UploadResult is the interpreted outcome of one resource upload
type UploadResult struct {
	Outcome UploadOutcome

	// HTTP status for Created/Rejected outcomes
	Status int

	// Draft resource URL, only set on Created
	ResourceURL string

	// Underlying cause, only set on TransportFailure
	Err error
}

// ResourceMetadata is the metadata part of the create-resource request
type ResourceMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MoodleNetClient performs the create-resource upload against a MoodleNet
// instance. It owns request construction only; validation, size limits and
// cleanup belong to the sender.
type MoodleNetClient struct {
	http   *HTTPClient
	logger Logger
}

// NewMoodleNetClient creates a new MoodleNet API client
func NewMoodleNetClient(httpClient *HTTPClient, logger Logger) *MoodleNetClient {
	return &MoodleNetClient{
		http:   httpClient,
		logger: logger,
	}
}

// CreateResource uploads a packaged resource as a multipart POST to the
// issuer's create endpoint. The returned error is reserved for request
// construction failures (e.g. unreadable blob); everything that happens on
// the wire is reported through the UploadResult.
func (c *MoodleNetClient) CreateResource(
	ctx context.Context,
	issuer *models.Issuer,
	blob *models.PackagedResource,
	meta ResourceMetadata,
	accessToken string,
) (UploadResult, error) {
	file, err := os.Open(blob.Path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to open packaged resource: %w", err)
	}
	defer file.Close()

	metadataJSON, err := json.Marshal(meta)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to marshal resource metadata: %w", err)
	}

	// Stream the multipart body so a near-limit archive is never buffered
	// in memory.
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeCreateResourceBody(writer, metadataJSON, blob, file))
	}()

	apiURL := strings.TrimRight(issuer.BaseURL, "/") + APICreateResourceURI
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, pr)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to build create-resource request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("moodlenet upload transport failure", "url", apiURL, "error", err)
		return UploadResult{Outcome: OutcomeTransportFailure, Err: err}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		c.logger.Debug("moodlenet upload rejected", "url", apiURL, "status", resp.StatusCode)
		return UploadResult{Outcome: OutcomeRejected, Status: resp.StatusCode}, nil
	}

	var body struct {
		Homepage string `json:"homepage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.logger.Warn("moodlenet upload returned unparseable body", "url", apiURL, "error", err)
		return UploadResult{Outcome: OutcomeTransportFailure, Err: err}, nil
	}

	c.logger.Info("moodlenet resource created", "url", apiURL, "resource_url", body.Homepage)
	return UploadResult{
		Outcome:     OutcomeCreated,
		Status:      resp.StatusCode,
		ResourceURL: body.Homepage,
	}, nil
}

// writeCreateResourceBody writes the two-part body: a JSON metadata part with
// form-data name "." and the binary file part with name ".resource".
func writeCreateResourceBody(
	writer *multipart.Writer,
	metadataJSON []byte,
	blob *models.PackagedResource,
	file io.Reader,
) error {
	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Disposition", `form-data; name="."`)
	metaHeader.Set("Content-Type", "application/json")

	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return fmt.Errorf("failed to create metadata part: %w", err)
	}
	if _, err := metaPart.Write(metadataJSON); err != nil {
		return fmt.Errorf("failed to write metadata part: %w", err)
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=".resource"; filename=%q`, blob.Filename))
	fileHeader.Set("Content-Type", blob.MimeType)
	fileHeader.Set("Content-Transfer-Encoding", "binary")

	filePart, err := writer.CreatePart(fileHeader)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(filePart, file); err != nil {
		return fmt.Errorf("failed to write file part: %w", err)
	}

	return writer.Close()
}
