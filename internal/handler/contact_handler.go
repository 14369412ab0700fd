package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/granito/portfolio/internal/content"
	"github.com/granito/portfolio/internal/db"
	"github.com/granito/portfolio/internal/service"
)

type contactRequest struct {
	Name    string `json:"name" form:"name"`
	Email   string `json:"email" form:"email"`
	Subject string `json:"subject" form:"subject"`
	Message string `json:"message" form:"message"`
}

type contactStatusRequest struct {
	Status string `json:"status" form:"status"`
}

type contactItem struct {
	Index int `json:"index"`
	db.ContactMessage
	MessageHTML string `json:"messageHtml"`
}

// SubmitContact 接收联系表单，支持 JSON 与表单两种提交方式。
func (a *API) SubmitContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误")
		return
	}

	rc := a.requestContext(c)
	msg, err := a.contacts.Submit(c.Request.Context(), service.ContactInput{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
		IP:      rc.IP,
	})
	if err != nil {
		a.handleContactError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "感谢留言，我会尽快回复。",
		"contact": msg,
	})
}

// ListContacts 返回全部留言，按提交顺序排列并附带 Markdown 预览。
func (a *API) ListContacts(c *gin.Context) {
	messages, err := a.contacts.List(c.Request.Context())
	if err != nil {
		a.logger.Error("[Contacts] list failed", "error", err)
		respondError(c, http.StatusInternalServerError, "读取留言失败")
		return
	}

	items := make([]contactItem, 0, len(messages))
	for i, msg := range messages {
		item := contactItem{Index: i, ContactMessage: msg}
		if html, err := content.RenderMarkdown(msg.Message); err == nil {
			item.MessageHTML = string(html)
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{"contacts": items, "total": len(items)})
}

// DeleteContact 按位置删除留言，后续留言的下标随之前移。
func (a *API) DeleteContact(c *gin.Context) {
	index, err := parseIndexParam(c, "index")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.contacts.Delete(c.Request.Context(), index); err != nil {
		a.handleContactError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "留言已删除"})
}

func (a *API) UpdateContactStatus(c *gin.Context) {
	index, err := parseIndexParam(c, "index")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var req contactStatusRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误")
		return
	}

	if err := a.contacts.UpdateStatus(c.Request.Context(), index, req.Status); err != nil {
		a.handleContactError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": req.Status})
}

func (a *API) handleContactError(c *gin.Context, err error) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   validation.Error(),
			"field":   validation.Field,
		})
	case errors.Is(err, service.ErrContactInvalidInput),
		errors.Is(err, service.ErrContactInvalidStatus):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrContactIndexOutOfRange):
		respondError(c, http.StatusNotFound, "留言不存在")
	default:
		a.logger.Error("[Contacts] operation failed", "error", err)
		respondError(c, http.StatusInternalServerError, "留言保存失败，请稍后重试")
	}
}
