package frontend

import (
	"encoding/json"
	"fmt"

	"github.com/coolnight20187/python-7ty-system/internal/notify"
	"github.com/coolnight20187/python-7ty-system/internal/syncer"
)

func customerProfile() Profile {
	return Profile{
		Name:         "customer",
		CacheVersion: "ty7-customer-v2.0.0",
		Assets: []string{
			"/",
			"/index.html",
			"/css/app.css",
			"/css/mobile.css",
			"/css/components.css",
			"/css/themes.css",
			"/js/app.js",
			"/js/auth.js",
			"/js/wallet.js",
			"/js/bills.js",
			"/js/receipts.js",
			"/js/profile.js",
			"/js/notifications.js",
			"/js/api.js",
			"/components/modals.js",
			"/components/forms.js",
			"/components/camera.js",
			"/manifest.json",
			"/assets/icons/icon-192x192.png",
			"/assets/icons/icon-512x512.png",
			"/assets/images/default-avatar.png",
			cdnFontAwesome,
		},
		OfflinePages:         []string{"/offline.html", "/index.html"},
		SkipWaitingOnInstall: true,
		QueueVersion:         1,
		Categories: []Category{
			{
				Name:    "receipts",
				Method:  "POST",
				Path:    "/api/receipts/upload",
				Body:    syncer.MultipartForm("image", "file", "billId", "notes"),
				Tag:     "receipt-upload",
				Message: "SYNC_RECEIPTS",
				PayloadSchema: `{
					"type": "object",
					"required": ["billId", "file"],
					"properties": {
						"billId": {"type": ["string", "integer"]},
						"notes": {"type": "string"},
						"file": {
							"type": "object",
							"required": ["data"],
							"properties": {
								"name": {"type": "string"},
								"contentType": {"type": "string"},
								"data": {"type": "string", "contentEncoding": "base64"}
							}
						}
					}
				}`,
				Success: receiptUploaded,
			},
			{
				Name:    "withdrawals",
				Method:  "POST",
				Path:    "/api/withdrawals",
				Body:    syncer.JSONField("data"),
				Tag:     "withdrawal-request",
				Message: "SYNC_WITHDRAWALS",
				PayloadSchema: `{
					"type": "object",
					"required": ["data"],
					"properties": {
						"data": {
							"type": "object",
							"required": ["amount"],
							"properties": {"amount": {"type": "number", "exclusiveMinimum": 0}}
						}
					}
				}`,
				Success: withdrawalRequested,
			},
			{
				Name:   "collections",
				Method: "POST",
				Path:   "/api/bills/{billId}/collect",
				Body:   syncer.NoBody(),
				Tag:    "bill-collection",
				PayloadSchema: `{
					"type": "object",
					"required": ["billId"],
					"properties": {"billId": {"type": ["string", "integer"]}}
				}`,
			},
			{
				Name:   "profile_updates",
				Method: "PUT",
				Path:   "/api/profile",
				Body:   syncer.JSONField("data"),
				PayloadSchema: `{
					"type": "object",
					"required": ["data"],
					"properties": {"data": {"type": "object"}}
				}`,
			},
		},
		Notify: notify.Policy{
			DefaultTitle: "7tỷ.vn",
			DefaultBody:  "Bạn có thông báo mới",
			DefaultTag:   "default",
			Icon:         iconPath,
			Badge:        badgePath,
			Vibrate:      []int{200, 100, 200},
			ActionSets: map[string][]notify.Action{
				"withdrawal": {{ID: "view-withdrawal", Title: "Xem chi tiết", Icon: "/assets/icons/view.png"}, dismissAction},
				"receipt":    {{ID: "view-receipt", Title: "Xem biên nhận", Icon: "/assets/icons/receipt.png"}, dismissAction},
				"bill":       {{ID: "view-bills", Title: "Xem hóa đơn", Icon: "/assets/icons/bill.png"}, dismissAction},
				notify.DefaultActionSet: {
					{ID: "open", Title: "Mở ứng dụng", Icon: "/assets/icons/open.png"},
					dismissAction,
				},
			},
			ClickRoutes: map[string]string{
				"view-withdrawal": "/?page=wallet",
				"view-receipt":    "/?page=receipts",
				"view-bills":      "/?page=bills",
			},
			DismissActions: []string{"dismiss"},
			Focus:          notify.FocusNavigateAny,
		},
	}
}

func receiptUploaded(json.RawMessage) (notify.Copy, error) {
	return notify.Copy{
		Title:   "Tải biên nhận thành công",
		Body:    "Biên nhận đã được tải lên và đang chờ duyệt",
		Tag:     "receipt-uploaded",
		Actions: []notify.Action{{ID: "view-receipt", Title: "Xem chi tiết"}},
	}, nil
}

func withdrawalRequested(detail json.RawMessage) (notify.Copy, error) {
	var p struct {
		Data struct {
			Amount any `json:"amount"`
		} `json:"data"`
	}
	if err := decodeDetail(detail, &p); err != nil {
		return notify.Copy{}, fmt.Errorf("decode withdrawal: %w", err)
	}
	return notify.Copy{
		Title:   "Yêu cầu rút tiền thành công",
		Body:    fmt.Sprintf("Yêu cầu rút %s VND đã được gửi", notify.FormatAmount(p.Data.Amount)),
		Tag:     "withdrawal-requested",
		Actions: []notify.Action{{ID: "view-withdrawal", Title: "Xem chi tiết"}},
	}, nil
}
