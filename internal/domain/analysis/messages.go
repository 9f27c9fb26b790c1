package analysis

import (
	"time"
)

type MessageType string

const (
	MessageTypeNotification MessageType = "notification"
	MessageTypeReporting    MessageType = "reporting"
)

// Property keys attached to every outgoing message.
const (
	PropMessageType    = "messageType"
	PropMessageID      = "messageId"
	PropFactoryID      = "factoryId"
	PropCameraID       = "cameraId"
	PropTimestamp      = "timestamp"
	PropModuleEndpoint = "moduleEndpoint"
	PropImageURI       = "imageUri"
)

// NotificationMessage carries a camera's whole aggregate for one sweep.
type NotificationMessage struct {
	Result CameraAnalysisResult
	SentAt time.Time
}

func (m NotificationMessage) Type() MessageType { return MessageTypeNotification }

func (m NotificationMessage) Payload() any { return m.Result }

func (m NotificationMessage) Properties() map[string]string {
	return map[string]string{
		PropMessageType: string(MessageTypeNotification),
		PropFactoryID:   m.Result.FactoryID,
		PropCameraID:    m.Result.CameraID,
		PropTimestamp:   FormatImageName(m.SentAt),
	}
}

// ReportingMessage carries a single flattened result.
type ReportingMessage struct {
	Result FlatImageAnalysisResult
}

func (m ReportingMessage) Type() MessageType { return MessageTypeReporting }

func (m ReportingMessage) Payload() any { return m.Result }

func (m ReportingMessage) Properties() map[string]string {
	return map[string]string{
		PropMessageType:    string(MessageTypeReporting),
		PropFactoryID:      m.Result.FactoryID,
		PropCameraID:       m.Result.CameraID,
		PropTimestamp:      FormatImageName(m.Result.Timestamp),
		PropModuleEndpoint: m.Result.ModuleEndpoint,
		PropImageURI:       m.Result.ImageURI,
	}
}
