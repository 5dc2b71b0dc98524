package cmd

import (
	"echofm/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动echofm服务器",
	Long:  `启动echofm音乐流媒体系统的HTTP服务器，提供曲库、播放队列和订阅API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
