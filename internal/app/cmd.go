package app

import "strconv"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを掃除するワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// MigrateOptions はmigrateサブコマンドのオプション。
type MigrateOptions struct {
	Down  bool
	Steps int
}

// ParseMigrateArgs はmigrateサブコマンドの引数を解析する。
//
//	migrate            未適用のマイグレーションをすべて適用する
//	migrate down [N]   直近N件（既定1件）を取り消す
func ParseMigrateArgs(args []string) MigrateOptions {
	if len(args) < 2 || args[1] != "down" {
		return MigrateOptions{}
	}
	opts := MigrateOptions{Down: true, Steps: 1}
	if len(args) >= 3 {
		opts.Steps = migrateSteps(args[2])
	}
	return opts
}

// migrateSteps は件数引数を解釈する。不正な値は1として扱う。
func migrateSteps(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}
