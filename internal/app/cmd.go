package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はcronスケジュールでリフレッシュジョブを実行するワーカーモードを示す。
	CommandWorker Command = "worker"
	// CommandRefresh はリフレッシュジョブを1回だけ実行することを示す。
	CommandRefresh Command = "refresh"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandRead はオフラインファーストでカテゴリの記事を表示することを示す。
	CommandRead Command = "read"
	// CommandBookmark は記事をブックマークに追加することを示す。
	CommandBookmark Command = "bookmark"
	// CommandBookmarks はブックマーク一覧を表示することを示す。
	CommandBookmarks Command = "bookmarks"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandServe, CommandWorker, CommandRefresh, CommandMigrate,
		CommandHealthcheck, CommandRead, CommandBookmark, CommandBookmarks:
		return Command(args[0])
	default:
		return CommandServe
	}
}

// isClientCommand はローカルストアのみを使うクライアント側コマンドかどうかを返す。
// クライアント側コマンドはDATABASE_URLやNEWS_API_KEYを必要としない。
func (c Command) isClientCommand() bool {
	switch c {
	case CommandRead, CommandBookmark, CommandBookmarks:
		return true
	default:
		return false
	}
}
