package models

// Outcome 阶段执行结果
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeNoData  Outcome = "no_data"
	OutcomePartial Outcome = "partial" // 部分记录被丢弃，其余数据可用
	OutcomeFatal   Outcome = "fatal"   // 无可用输出
)

// Usable 结果是否可以继续进入下一阶段
func (o Outcome) Usable() bool {
	return o == OutcomeOK || o == OutcomePartial
}
