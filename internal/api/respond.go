package api

import (
	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/marcomuellner/otto/internal/apierr"
)

func writeJSON(c *app.RequestContext, status int, body any) {
	c.JSON(status, body)
}

func writeOK(c *app.RequestContext, body any) {
	writeJSON(c, consts.StatusOK, body)
}

// writeError maps an *apierr.Error onto the control-plane's HTTP error
// envelope: {"error": kind, "message": message, "details"?: ...}.
func writeError(c *app.RequestContext, apiErr *apierr.Error) {
	body := utils.H{
		"error":   string(apiErr.Kind),
		"message": apiErr.Message,
	}
	if apiErr.Details != nil {
		body["details"] = apiErr.Details
	}
	writeJSON(c, apierr.HTTPStatus(apiErr.Kind), body)
}

func bindJSON(c *app.RequestContext, dst any) *apierr.Error {
	body := c.GetRequest().Body()
	if len(body) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(body, dst); err != nil {
		return apierr.New(apierr.InvalidRequest, "malformed request body: "+err.Error())
	}
	return nil
}
