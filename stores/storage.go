package stores

import (
	"os"
	"whiteboard-server/core"
	"whiteboard-server/stores/aws"
	"whiteboard-server/stores/filesystem"
	"whiteboard-server/stores/memory"
	"whiteboard-server/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore selects the canvas store backend from the STORAGE_TYPE
// environment variable, defaulting to in-memory.
func GetStore() core.CanvasStore {
	storageType := os.Getenv("STORAGE_TYPE")
	var store core.CanvasStore

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data" // Default path
		}
		storageField["basePath"] = basePath
		store = filesystem.NewStore(basePath)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "whiteboard.db" // Default filename
		}
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewStore(dataSourceName)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = bucketName
		store = aws.NewStore(bucketName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
