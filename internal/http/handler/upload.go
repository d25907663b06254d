package handler

import (
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"docintake/internal/model"
	"docintake/internal/service"
)

// uploadPath is the upload route; errors on it are answered in the uploadResponse shape.
const uploadPath = "/api/uploadDocument"

// uploadResponse is the result shape the intake UI renders.
type uploadResponse struct {
	Status        string         `json:"status"`
	DocumentID    string         `json:"documentId,omitempty"`
	Message       string         `json:"message"`
	Details       *uploadDetails `json:"details,omitempty"`
	FailureReason string         `json:"failureReason,omitempty"`
}

type uploadDetails struct {
	FileName        string `json:"filename"`
	Size            int64  `json:"size"`
	DocumentType    string `json:"documentType"`
	CustomerID      string `json:"customerId"`
	ContentSystemID string `json:"contentSystemId,omitempty"`
}

// UploadDocument godoc
// @Summary Upload a customer document
// @Description Files the document with the content store and notifies core banking.
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document"
// @Param customerId formData string true "Customer ID"
// @Param documentType formData string true "Document type"
// @Param fileInputter formData string false "Operator who captured the file"
// @Param timestamp formData string false "Capture time, RFC 3339"
// @Success 200 {object} uploadResponse
// @Success 202 {object} uploadResponse "stored, banking notification failed"
// @Failure 400 {object} uploadResponse
// @Failure 413 {object} uploadResponse
// @Failure 502 {object} uploadResponse
// @Router /api/uploadDocument [post]
func UploadDocument(svc service.DispatchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := model.UploadRequest{
			CustomerID:   c.FormValue("customerId"),
			DocumentType: c.FormValue("documentType"),
			Inputter:     c.FormValue("fileInputter"),
		}

		if ts := strings.TrimSpace(c.FormValue("timestamp")); ts != "" {
			parsed, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(uploadResponse{
					Status:  string(model.OutcomeFailure),
					Message: "Invalid timestamp",
				})
			}
			req.Timestamp = parsed.UTC()
		}

		// A missing file is reported by the service so field checks keep their order.
		if fh, err := c.FormFile("file"); err == nil {
			f, err := fh.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
			}
			defer f.Close()
			fillFile(&req, fh, f)
		}

		res, err := svc.Submit(c.UserContext(), req)
		if err != nil {
			return writeUploadError(c, err)
		}

		body := uploadResponse{
			Status:        string(res.Outcome),
			DocumentID:    res.DocumentID,
			FailureReason: res.FailureReason,
			Details: &uploadDetails{
				FileName:        res.FileName,
				Size:            res.Size,
				DocumentType:    res.DocumentType,
				CustomerID:      res.CustomerID,
				ContentSystemID: res.ContentSystemID,
			},
		}
		switch res.Outcome {
		case model.OutcomeSuccess:
			body.Message = "Document uploaded successfully"
			return c.Status(fiber.StatusOK).JSON(body)
		case model.OutcomePartialFailure:
			body.Message = "Document stored but core banking was not notified"
			return c.Status(fiber.StatusAccepted).JSON(body)
		default:
			body.Message = "Document upload failed"
			return c.Status(fiber.StatusBadGateway).JSON(body)
		}
	}
}

func fillFile(req *model.UploadRequest, fh *multipart.FileHeader, f multipart.File) {
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	req.File = f
	req.FileName = fh.Filename
	req.ContentType = ct
	req.DeclaredSize = fh.Size
}

func writeUploadError(c *fiber.Ctx, err error) error {
	var validation *model.ValidationError
	if errors.As(err, &validation) {
		return c.Status(fiber.StatusBadRequest).JSON(uploadResponse{
			Status:  string(model.OutcomeFailure),
			Message: validation.Message,
		})
	}
	var tooLarge *model.PayloadTooLargeError
	if errors.As(err, &tooLarge) {
		return writeUploadTooLarge(c)
	}
	return writeDomainError(c, err)
}

func writeUploadTooLarge(c *fiber.Ctx) error {
	return c.Status(fiber.StatusRequestEntityTooLarge).JSON(uploadResponse{
		Status:  string(model.OutcomeFailure),
		Message: "File exceeds the maximum upload size",
	})
}
