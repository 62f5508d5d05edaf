package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/Bastien2203/pi-medias/logger"
	"github.com/Bastien2203/pi-medias/model"

	"github.com/gabriel-vasile/mimetype"
)

// sniffLen matches mimetype's default read limit.
const sniffLen = 3072

const octetStream = "application/octet-stream"

// mediaTypes covers extensions the system mime table often lacks.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

type uploadResponse struct {
	model.Media
	MediaID int64 `json:"media_id"` // older service builds answer with media_id instead of id
}

// UploadMedia streams content to the service as the multipart field "file".
// The display name travels in the Filename header, and as the part's
// filename. The body is never buffered whole, so content of any size works.
// A failed upload leaves nothing behind on the client side.
func (c *Client) UploadMedia(ctx context.Context, content io.Reader, displayName, token string) (*model.Media, error) {
	const op = "upload media"

	ctx, cancel := c.streamContext(ctx)
	defer cancel()

	head, body, err := sniff(content)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read content: %w", err)}
	}
	contentType := DetectContentType(head, displayName)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	req, err := c.newRequest(ctx, op, http.MethodPost, "/media", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(headerFilename, displayName)
	setBearer(req, token)

	go func() {
		pw.CloseWithError(writeFilePart(mw, displayName, contentType, body))
	}()

	logger.Info("[api/upload] 开始上传",
		logger.String("name", displayName),
		logger.String("content_type", contentType))

	resp, err := c.do(op, req)
	if err != nil {
		// the transport closed the request body, which unblocks the writer
		return nil, err
	}
	defer resp.Body.Close()

	if !success(resp) {
		reason := drain(resp.Body)
		logger.Warn("[api/upload] 上传失败",
			logger.String("name", displayName),
			logger.Int("status", resp.StatusCode),
			logger.String("reason", reason))
		return nil, &UploadError{StatusCode: resp.StatusCode}
	}

	var result uploadResponse
	if err := decodeJSON(op, resp.Body, &result); err != nil {
		return nil, err
	}
	media := result.Media
	if media.ID == 0 {
		media.ID = result.MediaID
	}
	logger.Info("[api/upload] 上传成功",
		logger.Int64("media_id", media.ID),
		logger.String("name", media.MediaName))
	return &media, nil
}

func writeFilePart(mw *multipart.Writer, name, contentType string, body io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

// sniff reads the first bytes of r for type detection and returns a reader
// that still yields the whole content.
func sniff(r io.Reader) ([]byte, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, nil, err
	}
	head = head[:n]
	return head, io.MultiReader(bytes.NewReader(head), r), nil
}

// DetectContentType picks the MIME type sent with an upload: the content's
// signature when it is conclusive, else the name's extension, else
// application/octet-stream.
func DetectContentType(head []byte, name string) string {
	detected := ""
	if len(head) > 0 {
		mt := mimetype.Detect(head)
		if !mt.Is(octetStream) && !mt.Is("text/plain") {
			return mt.String()
		}
		detected = mt.String()
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if detected != "" {
		return detected
	}
	return octetStream
}
