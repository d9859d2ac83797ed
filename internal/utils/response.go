package utils

import "github.com/gin-gonic/gin"

func ErrorResponse(message, details string) gin.H {
	resp := gin.H{
		"success": false,
		"error":   message,
	}
	if details != "" {
		resp["details"] = details
	}
	return resp
}
