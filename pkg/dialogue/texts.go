package dialogue

import (
	"fmt"
	"strings"

	"tarotbot/pkg/deck"
	"tarotbot/pkg/llmerrors"
)

const (
	textWelcome = "🔮 Добро пожаловать в мир Таро!\n\nЯ ваш личный таролог, готовый приоткрыть завесу будущего.\n\n✨ Выберите действие:"
	textSpreads = "📚 Выберите расклад для гадания:"
	textHelp    = "📖 Справка по боту 'Личный Таролог':\n\n" +
		"🔮 Бот умеет делать расклады карт Таро с помощью ИИ\n" +
		"✨ Доступно 7 различных типов раскладов\n" +
		"🎯 Каждый расклад персонализирован под ваш вопрос\n\n" +
		"💫 Как это работает:\n" +
		"1. Выберите тип расклада\n" +
		"2. Ответьте на вопросы\n" +
		"3. Введите магическое число\n" +
		"4. Получите расклад с интерпретацией\n\n" +
		"🌟 Все интерпретации генерируются ИИ на основе\n" +
		"классических значений карт Таро."
	textIdle    = "✨ Используйте кнопки для навигации или команды:\n\n/start - Главное меню\n/help - Справка\n\n🔮 Выберите действие:"
	textUnknown = "❌ Неизвестная команда"
	textCancel  = "✅ Текущий расклад отменён.\n\n🔮 Выберите действие:"

	textAskName      = "👤 Как вас зовут?"
	textAskBirthdate = "📅 Введите дату рождения в формате ДД.ММ.ГГГГ\n(например: 15.03.1990):"
	textAskMagic     = "Введите магическое число от 1 до 999:"

	textCreating      = "🎨 Теперь создаю ваш персональный расклад..."
	textAnswersDone   = "✅ Спасибо за подробные ответы!\n\n" + textCreating
	textNoCredits     = "💫 **Бесплатные расклады закончились**\n\nК сожалению, у вас не осталось доступных раскладов.\n\n🔮 Возвращайтесь позже!"
	textReadingFailed = "❌ Ошибка при создании расклада. Попробуйте позже."
	textDeliverFailed = "❌ Не удалось сгенерировать интерпретацию. Попробуйте позже."

	textFeedbackPrompt = "🌟 **Оцените интерпретацию**\n\nВаш отзыв очень важен для меня! Это поможет улучшить качество будущих гаданий.\n\n⭐ Выберите количество звезд:"
	textCommentRequest = "💬 **Оставьте комментарий**\n\nРасскажите, что вам понравилось или что можно улучшить?\nВаш отзыв поможет мне стать лучше!\n\n📝 Напишите ваш комментарий:"
	textCommentThanks  = "💝 **Спасибо за подробный отзыв!**\n\nВаш комментарий очень ценен для меня. Я обязательно учту ваши пожелания при улучшении интерпретаций.\n\n✨ Возвращайтесь за новыми раскладами!"
	textFeedbackCancel = "✅ **Обратная связь отменена**\n\nНичего страшного! Возвращайтесь за новыми раскладами когда захотите.\n\n🔮 Буду рад помочь вам снова!"

	interpretationHeading = "🔮 Интерпретация:\n"
)

var ratingThanks = [...]string{
	1: "😔 Очень жаль, что не понравилось! Буду работать над улучшением интерпретаций.",
	2: "😐 Спасибо за честность! Ваш отзыв поможет мне стать лучше.",
	3: "😊 Спасибо за отзыв! Рад, что интерпретация была полезной.",
	4: "😄 Отлично! Рад, что вам понравилась интерпретация!",
	5: "🤩 Потрясающе! Очень рад, что смог дать точную интерпретацию!",
}

var apologies = map[llmerrors.Apology]string{
	llmerrors.ApologyOverload:   "⏸️ **Сервер временно перегружен**\n\nСлишком много запросов к нейросети. Пожалуйста, попробуйте через несколько минут.\n\n🔄 Ваш расклад сохранен, можете вернуться к нему позже.",
	llmerrors.ApologyQuota:      "💳 **Временные технические проблемы**\n\nК сожалению, сейчас не могу сгенерировать интерпретацию. Попробуйте позже.\n\n🎴 Ваш расклад готов, интерпретация появится при следующем обращении.",
	llmerrors.ApologyTimeout:    "⏱️ **Превышено время ожидания**\n\nНейросеть слишком долго генерирует ответ. Попробуйте еще раз.\n\n🔄 Обычно это занимает меньше времени.",
	llmerrors.ApologyGeneric:    "🤖 **Технические неполадки**\n\nПроизошла ошибка при обращении к нейросети. Попробуйте позже.\n\n⚙️ Мы работаем над устранением проблемы.",
	llmerrors.ApologyUnexpected: "❌ **Не удалось создать интерпретацию**\n\nПроизошла неожиданная ошибка. Попробуйте создать расклад заново.\n\n🔧 Если проблема повторяется, обратитесь к разработчику.",
}

// ApologyText returns the user message for a failed reading.
func ApologyText(err error) string {
	if text, ok := apologies[llmerrors.Classify(err)]; ok {
		return text
	}
	return apologies[llmerrors.ApologyUnexpected]
}

func returningUserText(name, spread string, age int) string {
	return fmt.Sprintf("🔮 Привет снова, %s!\n\n🎴 Расклад: %s\n👤 Возраст: %d лет\n\nСосредоточьтесь на своём вопросе и введите магическое число от 1 до 999:", name, spread, age)
}

func newUserText(spread string) string {
	return fmt.Sprintf("✨ Добро пожаловать в мир Таро!\n\n🎴 Вы выбрали расклад: %s\n\nДля персонализации расклада мне нужно узнать вас лучше.\n\n%s", spread, textAskName)
}

func retryText(msg, prompt string) string {
	return fmt.Sprintf("❌ %s\n\n%s", msg, prompt)
}

func nameAcceptedText(name string) string {
	return fmt.Sprintf("✅ Приятно познакомиться, %s!\n\n%s", name, textAskBirthdate)
}

func birthdateAcceptedText(age int) string {
	return fmt.Sprintf("✅ Спасибо! Ваш возраст: %d лет.\n\n🔮 Теперь сосредоточьтесь на своём вопросе и введите магическое число от 1 до 999:", age)
}

func magicAcceptedText(n int, spread, estimated, question, hint string) string {
	return fmt.Sprintf("✅ Магическое число %d принято!\n\n🎴 %s\nРекомендуемое время: %s\n\nДля более точной интерпретации ответьте на несколько вопросов:\n\n**%s**\n\n💡 %s",
		n, spread, estimated, question, hint)
}

func preliminaryQuestionText(k, n int, question, hint string) string {
	return fmt.Sprintf("✅ Ответ сохранен!\n\n❓ Вопрос %d из %d:\n\n**%s**\n\n💡 %s", k, n, question, hint)
}

func firstLLMQuestionText(n int, question string) string {
	return fmt.Sprintf("❓ У меня есть несколько уточняющих вопросов для более точной интерпретации:\n\n**Вопрос 1 из %d:**\n%s", n, question)
}

func nextLLMQuestionText(k, n int, question string) string {
	return fmt.Sprintf("✅ Спасибо за ответ!\n\n**Вопрос %d из %d:**\n%s", k, n, question)
}

func ratingText(rating int) string {
	return fmt.Sprintf("%s\n\nВаша оценка: %s\n\n✨ Возвращайтесь за новыми раскладами!", ratingThanks[rating], ratingStars[rating])
}

// CardsDescription lists the drawn cards in spread order.
func CardsDescription(cards []deck.Card) string {
	var b strings.Builder
	b.WriteString("Выпавшие карты:\n")
	for i, c := range cards {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Name)
	}
	return b.String()
}
