package api

import (
	"github.com/google/uuid"

	"github.com/marcomuellner/otto/internal/apierr"
	"github.com/marcomuellner/otto/internal/store"
)

// recordCommand writes one CommandAuditRecord per control-plane call. denied
// covers lane/mutation/unauthorized rejections, failed covers every other
// error.
func (d *Deps) recordCommand(command, lane string, metadata any, apiErr *apierr.Error) {
	status := store.CommandSuccess
	var errMsg *string
	if apiErr != nil {
		switch apiErr.Kind {
		case apierr.LaneForbidden, apierr.ForbiddenMutation, apierr.Unauthorized:
			status = store.CommandDenied
		default:
			status = store.CommandFailed
		}
		msg := apiErr.Error()
		errMsg = &msg
	}

	var metaJSON *string
	if metadata != nil {
		m := mustJSON(metadata)
		metaJSON = &m
	}

	_ = d.Audit.InsertCommandAudit(store.CommandAuditRecord{
		ID:           uuid.NewString(),
		Command:      command,
		Lane:         lane,
		Status:       status,
		MetadataJSON: metaJSON,
		ErrorMessage: errMsg,
		CreatedAt:    d.now(),
	})
}
