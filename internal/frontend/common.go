package frontend

import "github.com/coolnight20187/python-7ty-system/internal/notify"

const (
	iconPath       = "/assets/icons/icon-192x192.png"
	badgePath      = "/assets/icons/badge-72x72.png"
	cdnFontAwesome = "https://cdnjs.cloudflare.com/ajax/libs/font-awesome/6.0.0/css/all.min.css"
)

var dismissAction = notify.Action{ID: "dismiss", Title: "Đóng", Icon: "/assets/icons/close.png"}
