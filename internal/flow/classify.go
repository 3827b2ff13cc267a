// File: internal/flow/classify.go
package flow

import (
	"fmt"

	"github.com/weifanh/classsync-cli/internal/schedule"
)

// Error is a classified run failure: the machine-readable kind plus the
// message and recovery suggestions shown to the user. Messages are in the
// language of the sites being automated.
type Error struct {
	Kind        schedule.ErrorKind `json:"kind"`
	UserMessage string             `json:"userMessage"`
	Suggestions []string           `json:"suggestions"`
	Err         error              `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

type classification struct {
	userMessage string
	suggestions []string
}

var classifications = map[schedule.ErrorKind]classification{
	schedule.KindInvalidPayload: {
		userMessage: "週曆資料格式錯誤",
		suggestions: []string{"檢查週曆資料格式", "重新提交週曆資料"},
	},
	schedule.KindAuthRequired: {
		userMessage: "需要登入 1Campus",
		suggestions: []string{"請先登入 1Campus", "確認登入狀態正常"},
	},
	schedule.KindPageLoadTimeout: {
		userMessage: "頁面載入失敗",
		suggestions: []string{"重新整理頁面", "檢查網路連線", "稍後重試"},
	},
	schedule.KindElementNotFound: {
		userMessage: "找不到學習週曆按鈕",
		suggestions: []string{"確認頁面已完全載入", "檢查是否在正確的頁面", "嘗試手動點擊一次"},
	},
	schedule.KindTabNavigationTimeout: {
		userMessage: "tschoolkit 頁面開啟失敗",
		suggestions: []string{"檢查網路連線", "確認 tschoolkit 網站可正常訪問", "關閉其他不必要的分頁"},
	},
	schedule.KindModalNotReady: {
		userMessage: "無法開啟週曆填報表單",
		suggestions: []string{"手動點擊「週曆填報」按鈕", "確認頁面沒有彈出視窗阻擋", "重新載入 tschoolkit 頁面"},
	},
	schedule.KindFormFillingLowSuccess: {
		userMessage: "表單填寫失敗",
		suggestions: []string{"檢查週曆資料格式", "確認所有必填欄位都有資料", "手動檢查並完成填寫"},
	},
	schedule.KindCustomInputNotFound: {
		userMessage: "表單填寫失敗",
		suggestions: []string{"檢查週曆資料格式", "確認所有必填欄位都有資料", "手動檢查並完成填寫"},
	},
	schedule.KindOptionNotFound: {
		userMessage: "表單填寫失敗",
		suggestions: []string{"檢查週曆資料格式", "確認所有必填欄位都有資料", "手動檢查並完成填寫"},
	},
	schedule.KindSubmitButtonNotFound: {
		userMessage: "提交失敗",
		suggestions: []string{"檢查網路連線", "確認表單資料完整", "嘗試手動提交"},
	},
	schedule.KindSubmissionUnconfirmed: {
		userMessage: "提交失敗",
		suggestions: []string{"檢查網路連線", "確認表單資料完整", "嘗試手動提交"},
	},
}

// Classify wraps err with the user-facing material for its kind. Unknown
// kinds fall back to the generic message.
func Classify(kind schedule.ErrorKind, err error) *Error {
	c, ok := classifications[kind]
	if !ok {
		kind = schedule.KindUnexpected
		c = classification{
			userMessage: "發生未知錯誤，請重試",
			suggestions: []string{"稍後重試", "查看紀錄檔了解詳情"},
		}
	}
	return &Error{
		Kind:        kind,
		UserMessage: c.userMessage,
		Suggestions: c.suggestions,
		Err:         err,
	}
}
