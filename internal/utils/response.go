package utils

import "github.com/gofiber/fiber/v2"

// APIResponse describes the common structure for API responses.
type APIResponse struct {
	Success       bool        `json:"success"`
	Data          interface{} `json:"data,omitempty"`
	Message       string      `json:"message"`
	Details       interface{} `json:"details,omitempty"`
	CorrelationID string      `json:"correlationId,omitempty"`
}

// SendSuccess sends a successful JSON response with a message.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus sends a success payload using the provided HTTP status code.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	if status == 0 {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error JSON response with the given status code.
func SendError(c *fiber.Ctx, status int, message string, details interface{}) error {
	return sendFailure(c, status, message, details, nil)
}

// SendErrorWithData sends an error response that still carries a payload, such as the
// report created for a failed analysis start.
func SendErrorWithData(c *fiber.Ctx, status int, message string, data interface{}) error {
	return sendFailure(c, status, message, nil, data)
}

func sendFailure(c *fiber.Ctx, status int, message string, details, data interface{}) error {
	if message == "" {
		message = "error"
	}

	correlationID, _ := c.Locals("correlation_id").(string)

	return c.Status(status).JSON(APIResponse{
		Success:       false,
		Data:          data,
		Message:       message,
		Details:       details,
		CorrelationID: correlationID,
	})
}
