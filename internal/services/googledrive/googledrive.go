// Package googledrive delivers partner report files to per-partner Drive
// folders. Drive throttles at two levels: whole requests (403/429) and,
// when several files are uploaded for one run, individual items can fail
// while the rest succeed. Transport throttling is retried by the policy;
// failed items are resubmitted as a smaller batch.
package googledrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/openlearn-labs/retirement/internal/platform/restclient"
)

type Client struct {
	svc    *drive.Service
	policy restclient.Policy
	logger *slog.Logger
}

func New(ctx context.Context, secretsFile string, logger *slog.Logger) (*Client, error) {
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(secretsFile),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	policy := restclient.DefaultPolicy()
	policy.Classify = classifyDrive
	return &Client{svc: svc, policy: policy, logger: logger}, nil
}

// Upload is one pending file upload.
type Upload struct {
	Name     string
	ParentID string
	Content  []byte
}

// Uploaded pairs an upload with the file id Drive assigned.
type Uploaded struct {
	Upload
	FileID string
}

// UploadAll uploads every file, retrying the throttled subset until it
// drains or a non-throttle error occurs. Item order is not preserved.
func (c *Client) UploadAll(ctx context.Context, uploads []Upload) ([]Uploaded, error) {
	done := make([]Uploaded, 0, len(uploads))
	pending := uploads

	for len(pending) > 0 {
		var throttled []Upload
		for _, up := range pending {
			fileID, err := c.uploadOne(ctx, up)
			if err != nil {
				if isThrottle(err) {
					throttled = append(throttled, up)
					continue
				}
				return done, fmt.Errorf("upload %s: %w", up.Name, err)
			}
			done = append(done, Uploaded{Upload: up, FileID: fileID})
		}
		if len(throttled) == len(pending) {
			// No progress at all; the per-request policy already burned
			// its budget on each item.
			return done, fmt.Errorf("upload batch stalled: %d of %d files throttled", len(throttled), len(uploads))
		}
		if len(throttled) > 0 {
			c.logger.Warn("resubmitting throttled uploads", "count", len(throttled))
		}
		pending = throttled
	}
	return done, nil
}

func (c *Client) uploadOne(ctx context.Context, up Upload) (string, error) {
	var fileID string
	err := c.policy.Do(ctx, func() error {
		file := &drive.File{
			Name:     up.Name,
			Parents:  []string{up.ParentID},
			MimeType: "text/csv",
		}
		created, err := c.svc.Files.Create(file).
			Media(bytes.NewReader(up.Content), googleapi.ContentType("text/csv")).
			SupportsAllDrives(true).
			Fields("id").
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		fileID = created.Id
		return nil
	})
	return fileID, err
}

// CreateFolder creates a folder under parentID and returns its file id.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	var folderID string
	err := c.policy.Do(ctx, func() error {
		folder := &drive.File{
			Name:     name,
			Parents:  []string{parentID},
			MimeType: "application/vnd.google-apps.folder",
		}
		created, err := c.svc.Files.Create(folder).
			SupportsAllDrives(true).
			Fields("id").
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		folderID = created.Id
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create folder %s: %w", name, err)
	}
	return folderID, nil
}

// FolderEditors returns the email addresses holding writer or owner
// permission on a folder, used to address report notifications.
func (c *Client) FolderEditors(ctx context.Context, folderID string) ([]string, error) {
	var emails []string
	err := c.policy.Do(ctx, func() error {
		emails = emails[:0]
		pageToken := ""
		for {
			call := c.svc.Permissions.List(folderID).
				Fields("nextPageToken", "permissions(emailAddress,role)").
				SupportsAllDrives(true).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			perms, err := call.Do()
			if err != nil {
				return err
			}
			for _, p := range perms.Permissions {
				if p.EmailAddress == "" {
					continue
				}
				if p.Role == "writer" || p.Role == "owner" || p.Role == "organizer" || p.Role == "fileOrganizer" {
					emails = append(emails, p.EmailAddress)
				}
			}
			if perms.NextPageToken == "" {
				return nil
			}
			pageToken = perms.NextPageToken
		}
	})
	if err != nil {
		return nil, fmt.Errorf("list permissions for %s: %w", folderID, err)
	}
	return emails, nil
}

// AddComment posts a comment on an uploaded file.
func (c *Client) AddComment(ctx context.Context, fileID, content string) error {
	err := c.policy.Do(ctx, func() error {
		_, err := c.svc.Comments.Create(fileID, &drive.Comment{Content: content}).
			Fields("id").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("comment on %s: %w", fileID, err)
	}
	return nil
}

// classifyDrive maps Drive API errors onto retry actions: rate-limit
// 403s, 429 and 5xx are transient; everything else is fatal.
func classifyDrive(err error) restclient.Action {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if isThrottleCode(apiErr) {
			return restclient.RetryBackoff
		}
		if apiErr.Code >= 500 {
			return restclient.RetryBackoff
		}
		return restclient.Fail
	}
	return restclient.ClassifyHTTP(err)
}

func isThrottle(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && isThrottleCode(apiErr)
}

func isThrottleCode(apiErr *googleapi.Error) bool {
	if apiErr.Code == 429 {
		return true
	}
	if apiErr.Code != 403 {
		return false
	}
	for _, item := range apiErr.Errors {
		reason := strings.ToLower(item.Reason)
		if strings.Contains(reason, "ratelimitexceeded") || reason == "dailylimitexceeded" {
			return true
		}
	}
	return false
}
