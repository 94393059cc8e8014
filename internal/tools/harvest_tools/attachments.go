package harvest_tools

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxharvest/internal/harvest"
	"github.com/teemow/inboxharvest/internal/storage"
)

// ToolListAttachments inspects one message without downloading anything.
const ToolListAttachments = "list_message_attachments"

type attachmentOutput struct {
	PartID       string `json:"partId"`
	AttachmentID string `json:"attachmentId"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
	SizeHuman    string `json:"sizeHuman"`
	Accepted     bool   `json:"accepted"`
	Path         string `json:"path"`
	Exists       bool   `json:"exists"`
}

func listAttachmentsTool() mcp.Tool {
	return mcp.NewTool(ToolListAttachments,
		mcp.WithDescription("List the attachments of one Gmail message, whether the harvest policy keeps them, and where they would be saved"),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("The ID of the Gmail message"),
		),
		mcp.WithBoolean("all_types",
			mcp.Description("Evaluate with every attachment type accepted"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func (t *tools) handleListAttachments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	messageID, err := request.RequireString("message_id")
	if err != nil || messageID == "" {
		return mcp.NewToolResultError("message_id is required"), nil
	}
	policy := policyOptions(request, t.cfg.Policy)

	svc, err := t.cfg.Service(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open mailbox: %v", err)), nil
	}
	root, err := svc.GetMessage(ctx, messageID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get message: %v", err)), nil
	}

	writer := storage.NewWriter(t.cfg.OutputDir)
	writer.SkipExisting = true

	outputs := []attachmentOutput{}
	for part := range harvest.Candidates(root) {
		path, exists := writer.Existing(messageID, part.Filename)
		outputs = append(outputs, attachmentOutput{
			PartID:       part.PartID,
			AttachmentID: part.AttachmentID,
			Filename:     part.Filename,
			MimeType:     part.ContentType,
			Size:         part.Size,
			SizeHuman:    humanize.IBytes(uint64(max(part.Size, 0))),
			Accepted:     policy.AcceptsPart(part),
			Path:         path,
			Exists:       exists,
		})
	}

	if len(outputs) == 0 {
		return mcp.NewToolResultText("No attachments found in message"), nil
	}
	return mcp.NewToolResultJSON(outputs)
}
