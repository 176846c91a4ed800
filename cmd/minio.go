package cmd

import (
	"context"
	"fmt"
	"log"

	"demixer/config"
	"demixer/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the MinIO bucket",
	Long:  `List uploaded assets and generated stems in the MinIO bucket, or print bucket statistics.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Connecting to MinIO...")

		cfg := config.Load()
		fmt.Printf("MinIO config: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}

		client := storage.GetMinioClient()
		objects := client.ListObjects(context.Background(), cfg.MinioBucket, minio.ListObjectsOptions{
			Prefix:    minioPrefix,
			Recursive: true,
		})

		var count int
		var totalSize int64
		for object := range objects {
			if object.Err != nil {
				log.Fatalf("Failed to list objects: %v", object.Err)
			}
			count++
			totalSize += object.Size
			if !minioStats {
				fmt.Printf("%10d  %s\n", object.Size, object.Key)
			}
		}

		if minioStats {
			fmt.Printf("\nObjects: %d, total size: %d bytes\n", count, totalSize)
		}
		fmt.Println("\nDone.")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "filter objects by prefix, e.g. assets/ or stems/")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "print object count and total size instead of a listing")

	minioCmd.Example = `  # List all objects
  demixer minio

  # List generated stems only
  demixer minio -p "stems/"

  # Bucket statistics
  demixer minio -s`
}
