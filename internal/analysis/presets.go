package analysis

// Presets is the built-in message bank used by the engine/test route when
// the caller supplies a preset name instead of its own sample messages.
var Presets = map[string][]string{
	"toxicity": {
		"Ты идиот и ничтожество, тебя все ненавидят.",
		"Заткнись, тупица, никто тебя не слушает.",
	},
	"threat": {
		"Я тебя убью, если еще раз напишешь.",
		"Найду тебя и пожалеешь, что родился.",
	},
	"scam": {
		"Гарантированный доход 15% в день, только сегодня, переведи usdt.",
		"Удвоим вклад за 24 часа, пишите в личку.",
	},
	"recruitment": {
		"Ищем людей в закрытую группу для специальных задач.",
		"Набор в группу, высокая оплата, подробности в лс.",
	},
	"drugs": {
		"Продам мефедрон, есть закладки по городу.",
		"Гашиш, героин в наличии, пишите.",
	},
	"terrorism": {
		"Готовим теракт в людном месте, нужен исполнитель.",
		"Ищем добровольца для взрывного устройства.",
	},
}

// PresetMessages returns the messages for name, or the concatenation of all
// presets when name is "all" or empty.
func PresetMessages(name string) []string {
	if name == "" || name == "all" {
		var all []string
		for _, cat := range Categories {
			all = append(all, Presets[cat]...)
		}
		return all
	}
	return Presets[name]
}
