// Package progress содержит доменную модель учебного прогресса пользователя.
//
// Пакет определяет:
//
//   - Record: единственная запись прогресса на пользователя
//   - NextStreak: чистую функцию расчёта серии дней обучения
//   - Интерфейсы коллабораторов: Store, UserLookup, Locker
//
// # Инварианты
//
//	LessonsCompleted == len(CompletedLessons)  // после любой CompleteLesson
//	StudyStreak >= 0
//	TotalStudyTime только растёт
//
// Все изменения записи проходят через методы Record; хранилище видит
// только готовые копии. Связи с пользователем и достижениями выражены
// через идентификатор пользователя, а не через вложенные объекты.
//
// # Серия дней
//
// Сравнение выполняется по календарным дням в часовом поясе развёртывания:
//
//	res := NextStreak(rec.StudyStreak, rec.LastStudiedDate, clock.Today())
package progress
